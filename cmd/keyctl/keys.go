package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/prospect-enrichment-api/internal/domain/apikey"
	"github.com/makkenzo/prospect-enrichment-api/internal/handler/dto"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	importCategory string
	importFile     string
	listCategory   string
	toggleActive   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import provider keys, one per line",
	RunE: func(cmd *cobra.Command, _ []string) error {
		category, err := apikey.ParseCategory(importCategory)
		if err != nil {
			return eris.Wrap(err, "parse category")
		}

		raw, err := readKeys(cmd.InOrStdin(), importFile)
		if err != nil {
			return err
		}

		svc, closeFn, err := openKeyService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := svc.BulkAdd(cmd.Context(), raw, category)
		if err != nil {
			return eris.Wrap(err, "import keys")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "added %d key(s) to %s\n", res.Added, category)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  failed: %s\n", e)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List keys with status and credits (secrets masked)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var filter apikey.ListFilter
		if listCategory != "" {
			category, err := apikey.ParseCategory(listCategory)
			if err != nil {
				return eris.Wrap(err, "parse category")
			}
			filter.Category = &category
		}

		svc, closeFn, err := openKeyService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		keys, err := svc.List(cmd.Context(), filter)
		if err != nil {
			return eris.Wrap(err, "list keys")
		}
		return printKeys(cmd.OutOrStdout(), keys)
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Activate or deactivate a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrap(err, "parse key id")
		}

		svc, closeFn, err := openKeyService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		key, err := svc.SetActive(cmd.Context(), id, toggleActive)
		if err != nil {
			return eris.Wrap(err, "toggle key")
		}
		return printKeys(cmd.OutOrStdout(), []*dto.APIKeyResponse{key})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a key and unassign prospects enriched with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrap(err, "parse key id")
		}

		svc, closeFn, err := openKeyService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		if err := svc.Delete(cmd.Context(), id); err != nil {
			return eris.Wrap(err, "delete key")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show key counts per category",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc, closeFn, err := openKeyService(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()

		stats, err := svc.PoolStats(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "pool stats")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CATEGORY\tTOTAL\tELIGIBLE\tINACTIVE")
		for _, c := range stats.Categories {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", c.Category, c.Total, c.Eligible, c.Inactive)
		}
		return w.Flush()
	},
}

func readKeys(stdin io.Reader, path string) (string, error) {
	var (
		raw []byte
		err error
	)
	if path == "" || path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", eris.Wrap(err, "read keys")
	}
	return string(raw), nil
}

func printKeys(out io.Writer, keys []*dto.APIKeyResponse) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tKEY\tSTATUS\tACTIVE\tCREDITS\tLAST USED")
	for _, k := range keys {
		credits := "-"
		if k.CreditsRemaining != nil {
			credits = strconv.Itoa(*k.CreditsRemaining)
		}
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t...%s\t%s\t%t\t%s\t%s\n", k.ID, k.Category, k.KeySuffix, k.Status, k.IsActive, credits, lastUsed)
	}
	return w.Flush()
}

func init() {
	importCmd.Flags().StringVar(&importCategory, "category", "", "key category: PHONE_ONLY or EMAIL_ONLY (required)")
	importCmd.Flags().StringVar(&importFile, "file", "-", "file with one key per line, - for stdin")
	_ = importCmd.MarkFlagRequired("category")

	listCmd.Flags().StringVar(&listCategory, "category", "", "only list keys of this category")

	toggleCmd.Flags().BoolVar(&toggleActive, "active", true, "activate (true) or deactivate (false)")

	rootCmd.AddCommand(importCmd, listCmd, toggleCmd, deleteCmd, statsCmd)
}
