package app

import (
	"context"

	"github.com/1ureka/silk/internal/signaling"
	"github.com/1ureka/silk/internal/util"
)

// RunSignal serves the signaling hub on listen until ctx is cancelled.
func RunSignal(ctx context.Context, listen string) error {
	server := signaling.NewServer()
	port, err := server.Start(listen)
	if err != nil {
		return err
	}
	defer server.Close()

	util.LogSuccess("signaling server listening on port %d", port)
	<-ctx.Done()
	return nil
}
