package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romfetch-downloader/romfetch/internal/catalog"
)

var systemsCmd = &cobra.Command{
	Use:   "systems",
	Short: "List the systems the mirror catalog knows about",
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")

		first := true
		for _, group := range groupByCategory(catalog.Default().Systems()) {
			if category != "" && group.Category != category {
				continue
			}
			if !first {
				fmt.Println()
			}
			first = false
			fmt.Printf("%s:\n", group.Category)
			for _, name := range group.Names {
				fmt.Printf("  %s\n", name)
			}
		}
	},
}

func init() {
	systemsCmd.Flags().String("category", "", "only show one category (No-Intro, Redump, Other)")
}

type systemGroup struct {
	Category string
	Names    []string
}

// groupByCategory buckets systems into a fixed category order so each
// category header prints exactly once. Names keep their sorted order.
func groupByCategory(systems []catalog.System) []systemGroup {
	order := []string{"No-Intro", "Redump", "Other"}
	byCategory := make(map[string][]string)
	for _, s := range systems {
		byCategory[s.Category] = append(byCategory[s.Category], s.Name)
	}

	groups := make([]systemGroup, 0, len(order))
	for _, cat := range order {
		if names := byCategory[cat]; len(names) > 0 {
			groups = append(groups, systemGroup{Category: cat, Names: names})
		}
	}
	return groups
}
