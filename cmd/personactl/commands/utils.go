package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/persona-engine/internal/app"
	"github.com/suPer8Hu/persona-engine/internal/config"
	"github.com/suPer8Hu/persona-engine/internal/logging"
)

func loadConfig() config.Config {
	_ = godotenv.Load()
	return config.Load()
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg := loadConfig()
	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func parseUserID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
