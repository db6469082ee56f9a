package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/stockpilot/internal/app"
	"github.com/aatumaykin/stockpilot/internal/constants"
	"github.com/aatumaykin/stockpilot/internal/docstore"
)

var importReplace bool

var importCmd = &cobra.Command{
	Use:   "import <collection> <file.json>",
	Short: "Load documents from a JSON array into a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, path := args[0], args[1]
		if !slices.Contains(constants.Collections, collection) {
			return fmt.Errorf("unknown collection %q (expected one of %v)", collection, constants.Collections)
		}
		docs, err := readDocuments(path)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(a *app.App) error {
			if importReplace {
				if _, err := a.Docs().Clear(cmd.Context(), collection); err != nil {
					return err
				}
			}
			n, err := a.Docs().InsertMany(cmd.Context(), collection, docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents into %s\n", n, collection)
			return nil
		})
	},
}

func readDocuments(path string) ([]docstore.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var docs []docstore.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%s must contain a JSON array of objects: %w", path, err)
	}
	return docs, nil
}

func init() {
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Delete existing documents of the collection first")
}
