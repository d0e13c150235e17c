package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"newsroom/internal/core"
	"newsroom/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print pipeline statistics from the local store",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.NewStore(viper.GetString("data.dir"))
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer func() { _ = st.Close() }()

		cutoff := time.Now().Add(-24 * time.Hour)
		backlog, err := st.CountUnprocessed()
		if err != nil {
			return err
		}
		articles, err := st.CountArticlesByStatusSince(cutoff)
		if err != nil {
			return err
		}
		runs, err := st.GetRunStatsSince(cutoff)
		if err != nil {
			return err
		}

		out := struct {
			Backlog  int                        `json:"backlog"`
			Articles map[core.ArticleStatus]int `json:"articles_24h"`
			Runs     []store.RunStats           `json:"runs_24h"`
		}{backlog, articles, runs}

		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
