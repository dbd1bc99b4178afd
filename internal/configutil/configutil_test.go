package configutil

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("name", "flag-default", "")
	cmd.Flags().Int("count", 3, "")
	cmd.Flags().Duration("wait", time.Second, "")
	return cmd
}

func TestFlagOrViperPrecedence(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newTestCmd()
	if got := FlagOrViperString(cmd, "name", "test.name"); got != "flag-default" {
		t.Fatalf("default mismatch: got %q want %q", got, "flag-default")
	}

	viper.Set("test.name", "from-viper")
	viper.Set("test.count", 7)
	viper.Set("test.wait", "5s")
	if got := FlagOrViperString(cmd, "name", "test.name"); got != "from-viper" {
		t.Fatalf("viper value mismatch: got %q want %q", got, "from-viper")
	}
	if got := FlagOrViperInt(cmd, "count", "test.count"); got != 7 {
		t.Fatalf("viper int mismatch: got %d want 7", got)
	}
	if got := FlagOrViperDuration(cmd, "wait", "test.wait"); got != 5*time.Second {
		t.Fatalf("viper duration mismatch: got %v want 5s", got)
	}

	if err := cmd.Flags().Set("name", "from-flag"); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	if got := FlagOrViperString(cmd, "name", "test.name"); got != "from-flag" {
		t.Fatalf("changed flag mismatch: got %q want %q", got, "from-flag")
	}
}
