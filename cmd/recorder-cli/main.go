package main

import (
	"context"
	"countyrecorder/cmd/recorder-cli/commands"
	"countyrecorder/internal/components/osutil"
)

func main() {
	ctx, cancel := osutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
