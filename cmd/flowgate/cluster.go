package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/basinrelay/flowgate/pkg/coordinator"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Bootstrap or join a flowgate coordinator cluster",
}

func init() {
	clusterCmd.AddCommand(clusterBootstrapCmd)
	clusterCmd.AddCommand(clusterJoinCmd)

	for _, c := range []*cobra.Command{clusterBootstrapCmd, clusterJoinCmd} {
		c.Flags().String("node-id", "", "this node's raft server ID (required)")
		c.Flags().String("bind-addr", "127.0.0.1:9091", "raft transport bind address")
		c.Flags().String("data-dir", "./flowgate-data", "durable state directory")
		c.MarkFlagRequired("node-id")
	}
}

var clusterBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Form a new single-voter cluster rooted at this node",
	Long: `Bootstrap forms a brand-new cluster with this node as the
sole voter and initializes the cluster certificate authority. Once
running, type commands at the admin console (issue-token, add-voter,
remove-server, apply-topology, status) to grow the cluster: a node
started with "cluster join" waits passively to be admitted, so a
voter is added here, on the leader, not by the joining node calling
out to anyone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCoordinatorFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := c.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		fmt.Println("cluster bootstrapped, this node is the sole voter")
		return runClusterConsole(c)
	},
}

var clusterJoinCmd = &cobra.Command{
	Use:   "join",
	Short: "Start raft transport and wait to be admitted to an existing cluster",
	Long: `Join starts this node's raft transport and loads the cluster
CA from its local store, then waits for the cluster leader to call AddVoter
for it. It does not contact the leader itself; the operator runs
"add-voter <node-id> <bind-addr>" at the leader's own admin console
(started by "cluster bootstrap") after validating this node out of
band.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCoordinatorFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := c.JoinExisting(); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
		fmt.Println("raft transport started, waiting to be admitted as a voter")
		return runClusterConsole(c)
	},
}

func newCoordinatorFromFlags(cmd *cobra.Command) (*coordinator.Coordinator, error) {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	return coordinator.New(coordinator.Config{
		NodeID:   nodeID,
		BindAddr: bindAddr,
		DataDir:  dataDir,
	})
}

// runClusterConsole reads administrative commands from stdin until
// EOF or an interrupt, dispatching each to the coordinator. It blocks
// until the process is asked to stop.
func runClusterConsole(c *coordinator.Coordinator) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Println(`commands: issue-token <role> <ttl>, add-voter <id> <addr>, remove-server <id>, apply-topology <revision> <file>, status, quit`)

	for {
		select {
		case <-sigCh:
			fmt.Println("\nshutting down...")
			return shutdownCoordinator(c)
		case line, ok := <-lines:
			if !ok {
				return shutdownCoordinator(c)
			}
			if handleAdminCommand(c, line) {
				return shutdownCoordinator(c)
			}
		}
	}
}

func shutdownCoordinator(c *coordinator.Coordinator) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown coordinator: %w", err)
	}
	fmt.Println("shutdown complete")
	return nil
}

// handleAdminCommand runs one console command, reporting its result to
// stdout. It returns true when the console should stop (quit/exit).
func handleAdminCommand(c *coordinator.Coordinator, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "status":
		fmt.Printf("leader=%v is_leader=%v leader_addr=%q\n", c.LeaderAddr() != "", c.IsLeader(), c.LeaderAddr())

	case "issue-token":
		if len(fields) != 3 {
			fmt.Println("usage: issue-token <role> <ttl>")
			return false
		}
		ttl, err := time.ParseDuration(fields[2])
		if err != nil {
			fmt.Printf("invalid ttl: %v\n", err)
			return false
		}
		tok, err := c.IssueJoinToken(fields[1], ttl)
		if err != nil {
			fmt.Printf("issue-token failed: %v\n", err)
			return false
		}
		fmt.Printf("token=%s role=%s expires=%s\n", tok.Token, tok.Role, tok.ExpiresAt.Format(time.RFC3339))

	case "add-voter":
		if len(fields) != 3 {
			fmt.Println("usage: add-voter <node-id> <bind-addr>")
			return false
		}
		if err := c.AddVoter(fields[1], fields[2]); err != nil {
			fmt.Printf("add-voter failed: %v\n", err)
			return false
		}
		fmt.Printf("added %s at %s as voter\n", fields[1], fields[2])

	case "remove-server":
		if len(fields) != 2 {
			fmt.Println("usage: remove-server <node-id>")
			return false
		}
		if err := c.RemoveServer(fields[1]); err != nil {
			fmt.Printf("remove-server failed: %v\n", err)
			return false
		}
		fmt.Printf("removed %s\n", fields[1])

	case "apply-topology":
		if len(fields) != 3 {
			fmt.Println("usage: apply-topology <revision> <file>")
			return false
		}
		config, err := os.ReadFile(fields[2])
		if err != nil {
			fmt.Printf("read topology file: %v\n", err)
			return false
		}
		if err := c.ApplyTopologyConfig(fields[1], config); err != nil {
			fmt.Printf("apply-topology failed: %v\n", err)
			return false
		}
		fmt.Printf("applied topology revision %s (%d bytes)\n", fields[1], len(config))

	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return false
}
