/*
Package buffer defines the BufferSender/BufferReceiver contract shared by
every edge between two topology components (source→transform,
transform→sink, and so on), and the Policy that governs what happens
when a sender is faster than its receiver can drain.

Two backends implement the contract: pkg/buffer/memory (a bounded
in-process channel) and pkg/buffer/disk (a write-ahead log). pkg/buffer/
overflow composes a non-blocking primary and a secondary into a
primary-with-fallback pair, which is how a memory buffer backed by a
disk buffer is built. Senders nest, since an overflow.Sender is itself a
buffer.Sender; receivers do not, since an overflow.Receiver does not
expose the channel a further overflow.Receiver needs.
*/
package buffer
