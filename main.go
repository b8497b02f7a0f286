package main

import "github.com/CraigKelly/hample/cmd"

// TODO: dense mass matrix adaptation (currently diagonal only)

// TODO: stream draws to the trace file during sampling instead of dumping them
//       at the end - matters once draw counts get big

// TODO: checkpointing for chains (freeze mid-warmup and continue) - which means
//       chain/adaptation state all need to serialize

func main() {
	cmd.Execute()
}
