package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/store"
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List finished interviews or show one of them",
	Run: func(cmd *cobra.Command, _ []string) {
		results(cmd)
	},
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.Flags().String("id", "", "show the full record of one session")
	resultsCmd.Flags().BoolP("all", "a", false, "include sessions that never finished")
}

func results(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if config.Store.Driver == "" || config.Store.Driver == store.DriverMemory {
		logger.Fatal("results need a persistent store",
			zap.String("driver", config.Store.Driver),
			zap.String("hint", "set store.driver to file or sqlite"),
		)
	}

	st, err := store.Open(ctx, config.Store)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	out := cmd.OutOrStdout()

	if id := cmd.Flag("id").Value.String(); id != "" {
		if _, err := uuid.Parse(id); err != nil {
			logger.Fatal("session id must be a uuid", zap.String("session_id", id), zap.Error(err))
		}
		rec, err := st.Get(ctx, id)
		if err != nil {
			logger.Fatal("getting the session", zap.String("session_id", id), zap.Error(err))
		}
		// do not bother error since the record was decoded from json already
		pretty, _ := json.MarshalIndent(rec, "", "  ")
		fmt.Fprintln(out, string(pretty))
		return
	}

	records, err := st.List(ctx)
	if err != nil {
		logger.Fatal("listing sessions", zap.Error(err))
	}

	all := cmd.Flag("all").Value.String() == "true"
	shown := printRecords(out, records, all)
	logger.Info("sessions listed", zap.Int("count", shown), zap.Int("stored", len(records)))
}

func printRecords(out io.Writer, records []store.Record, all bool) int {
	shown := 0
	for _, rec := range records {
		if !rec.Finalized() && !all {
			continue
		}
		shown++

		score := "-"
		reason := ""
		if rec.Outcome != nil {
			reason = rec.Outcome.Reason
			if report := rec.Outcome.Report; report != nil && !report.Unavailable {
				score = fmt.Sprintf("%d", report.Score)
			}
		}

		fmt.Fprintf(out, "%s  %s  %-13s score=%-2s  %s  %s\n",
			rec.ID,
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.Status,
			score,
			rec.Profile.DisplayName(),
			reason,
		)
	}
	return shown
}
