package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/hrnotify/internal/credential"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/session"
	appsync "github.com/nhle/hrnotify/internal/sync"
	"github.com/nhle/hrnotify/internal/theme"
	"github.com/nhle/hrnotify/internal/unread"
)

func statusCommand(e *env) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print unread counts once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := credential.OpenVault()
			if err != nil {
				return err
			}
			sess, err := loadSession(vault)
			if err != nil {
				return err
			}

			st, err := e.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc, err := session.New(session.Options{Session: sess, Config: e.cfg, Store: st})
			if err != nil {
				return err
			}
			if err := svc.Start(cmd.Context()); err != nil {
				return err
			}
			defer svc.Close()

			waitForSync(cmd.Context(), svc, wait)
			printCounts(cmd.OutOrStdout(), sess.Role, svc.Counts(), svc.Chat().UnreadTotal())
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the first fetch")
	return cmd
}

// waitForSync returns once every source has been fetched at least once,
// successfully or not, or when wait elapses.
func waitForSync(ctx context.Context, svc *session.Service, wait time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if synced(svc.SyncStatuses()) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func synced(statuses []appsync.SyncStatus) bool {
	for _, s := range statuses {
		if s.State != appsync.SyncError && s.LastSync.IsZero() {
			return false
		}
	}
	return true
}

func printCounts(w io.Writer, role model.Role, c unread.Counts, chat int) {
	for _, ch := range unread.VisibleChannels(role) {
		fmt.Fprintf(w, "%-22s %d\n", theme.ChannelLabel(ch), c.Get(ch))
	}
	fmt.Fprintf(w, "%-22s %d\n", "Total", c.Total)
	fmt.Fprintf(w, "%-22s %d\n", "Chat", chat)
}
