/*
Package storage persists the small amount of control-plane state a
coordinator instance needs outside raft's own log: the cluster's CA
material, outstanding join tokens, and the most recently applied
topology snapshot.

# Layout

BoltStore keeps one bucket per entity:

	ca/            single "ca" key holding the CA's DER-encoded cert and
	               encrypted private key (see pkg/security)
	join_tokens/   token string -> JoinToken JSON
	topology/      "revision" and "data" keys holding the last applied
	               topology.Graph's revision marker and its serialized
	               config, so a restarted follower can answer
	               readiness checks before its first post-restart
	               AppendEntries

Each bucket is independent; there is no cross-bucket transaction
requirement because a coordinator only ever mutates one of these
categories per raft-applied command.

# Usage

	store, err := storage.NewBoltStore("/var/lib/flowgate")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveJoinToken(&storage.JoinToken{
		Token:     token,
		Role:      "router",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}); err != nil {
		// ...
	}
*/
package storage
