package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/charlesoon/everything/cmd"
	"github.com/charlesoon/everything/pkg/service"
)

func searchMain(command *cobra.Command, arguments []string) error {
	// Create the service and defer its shutdown.
	engine, err := createService()
	if err != nil {
		return err
	}
	defer engine.Stop()

	// Execute the query.
	input := ""
	if len(arguments) == 1 {
		input = arguments[0]
	}
	results, err := engine.Search(input, service.SearchOptions{
		Limit:   searchConfiguration.limit,
		Offset:  searchConfiguration.offset,
		SortBy:  searchConfiguration.sortBy,
		SortDir: searchConfiguration.sortDir,
	})
	if err != nil {
		return err
	}

	// Print the result page.
	if searchConfiguration.pathsOnly {
		for _, entry := range results {
			fmt.Println(entry.Path)
		}
		return nil
	}
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 2, ' ', 0)
	for _, entry := range results {
		size := "-"
		if entry.Size != nil {
			size = humanize.Bytes(uint64(*entry.Size))
		}
		mtime := "-"
		if entry.MTime != nil {
			mtime = time.Unix(*entry.MTime, 0).Format("2006-01-02 15:04")
		}
		kind := "file"
		if entry.IsDir {
			kind = "dir"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", entry.Path, kind, size, mtime)
	}
	writer.Flush()

	// Done.
	return nil
}

var searchCommand = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed file names",
	Args:  cobra.MaximumNArgs(1),
	Run:   cmd.Mainify(searchMain),
}

var searchConfiguration struct {
	// limit is the requested page size.
	limit int
	// offset is the page offset.
	offset int
	// sortBy is the sort dimension.
	sortBy string
	// sortDir is the sort direction.
	sortDir string
	// pathsOnly restricts output to bare paths.
	pathsOnly bool
}

func init() {
	flags := searchCommand.Flags()
	flags.IntVarP(&searchConfiguration.limit, "limit", "n", 0, "Maximum results per page")
	flags.IntVar(&searchConfiguration.offset, "offset", 0, "Result page offset")
	flags.StringVar(&searchConfiguration.sortBy, "sort", "name", "Sort dimension (name|mtime|size)")
	flags.StringVar(&searchConfiguration.sortDir, "dir", "asc", "Sort direction (asc|desc)")
	flags.BoolVar(&searchConfiguration.pathsOnly, "paths", false, "Print bare paths only")
}
