package rag

import "github.com/poiesic/digest/core"

// AskMonitor provides hooks to observe the answering process.
// Retrieval and generation hooks fire once per attempt.
type AskMonitor interface {
	Start(recordID core.ID, question string)
	AfterQueryEmbedding(vector []float32)
	AfterRetrieval(matches []*core.ChunkMatch)
	AfterContextAssembly(context string, used []*core.ChunkMatch)
	Finish(answer *Answer, err error)
}

// noopMonitor is a no-op implementation of AskMonitor
type noopMonitor struct{}

var _ AskMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.ID, _ string)                           {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)                     {}
func (n *noopMonitor) AfterRetrieval(_ []*core.ChunkMatch)                 {}
func (n *noopMonitor) AfterContextAssembly(_ string, _ []*core.ChunkMatch) {}
func (n *noopMonitor) Finish(_ *Answer, _ error)                           {}
