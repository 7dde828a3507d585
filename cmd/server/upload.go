package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fortune-cookie/server/internal/dispatch"
	"github.com/fortune-cookie/server/internal/upload"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func runUpload(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(uploadFlags.timeout)
	if err != nil {
		return errors.Wrap(err, "parse timeout failed")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return uploadFile(ctx, uploadFlags.addr, args[0], cmd.OutOrStdout())
}

// uploadFile sends the file at path as one UPLOAD frame and copies the
// server's greeting and reply to out.
func uploadFile(ctx context.Context, addr, path string, out io.Writer) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s failed", path)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "dial %s failed", addr)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	r := bufio.NewReader(conn)
	// Welcome line and usage hint.
	for i := 0; i < 2; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return errors.Wrap(err, "read greeting failed")
		}
		fmt.Fprint(out, line)
	}

	// Command and frame go out in one write.
	var req bytes.Buffer
	req.WriteString(dispatch.CmdUpload + "\n")
	if err := upload.WriteFrame(&req, payload); err != nil {
		return err
	}
	if _, err := conn.Write(req.Bytes()); err != nil {
		return errors.Wrap(err, "send upload failed")
	}

	reply, err := r.ReadString('\n')
	if err != nil {
		return errors.Wrap(err, "read upload reply failed")
	}
	fmt.Fprint(out, reply)

	fmt.Fprintf(conn, "%s\n", dispatch.CmdExit)
	if reply = strings.TrimSpace(reply); strings.HasPrefix(reply, "ERROR") {
		return errors.New(reply)
	}
	return nil
}
