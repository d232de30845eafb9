package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:     "check",
	Short:   "Check connectivity to the store, osTicket and Kanboard",
	GroupID: "system",
	Long: `Check connectivity to the store, osTicket and Kanboard.

Lists the osTicket help topics and Kanboard projects, which are the ids
used by "kbridge routes set". For the default project and every routed
project, reports the status table columns the board does not have; tasks
bound for a missing column are created in the board's first column.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTPTimeout+5*time.Second)
		defer cancel()

		var report struct {
			Store         string            `json:"store"`
			OSTicket      string            `json:"osticket"`
			Kanboard      string            `json:"kanboard"`
			Topics        []model.Category  `json:"topics,omitempty"`
			Projects      []model.Container `json:"projects,omitempty"`
			DefaultColumn string            `json:"default_column,omitempty"`
			Boards        []boardCheck      `json:"boards,omitempty"`

			failed bool
		}
		probe := func(err error) string {
			if err != nil {
				report.failed = true
				return err.Error()
			}
			return "ok"
		}

		report.Store = probe(a.store.Ping(ctx))
		err = a.source.Ping(ctx)
		if err == nil {
			report.Topics, err = a.source.ListCategories(ctx)
		}
		report.OSTicket = probe(err)
		report.Projects, err = a.target.ListContainers(ctx)
		report.Kanboard = probe(err)
		if err == nil {
			tr, err := loadTranslation()
			if err != nil {
				return err
			}
			report.DefaultColumn = tr.DefaultColumn()
			rules, err := a.store.ListRoutingRules(ctx)
			if err != nil {
				report.Store = probe(err)
			}
			for _, id := range routedProjects(cfg.KanboardDefaultProject, rules) {
				bc := boardCheck{ProjectID: id}
				cols, err := a.target.ListColumns(ctx, id)
				if err != nil {
					bc.Error = probe(err)
				} else {
					bc.Missing = missingColumns(tr.Columns(), cols)
				}
				report.Boards = append(report.Boards, bc)
			}
		}

		if jsonOutput {
			printJSON(report)
		} else {
			printCheckLine("store", report.Store)
			printCheckLine("osticket", report.OSTicket)
			printCheckLine("kanboard", report.Kanboard)
			if len(report.Topics) > 0 {
				fmt.Println()
				w := newTable()
				fmt.Fprintln(w, "TOPIC\tNAME")
				for _, c := range report.Topics {
					fmt.Fprintf(w, "%d\t%s\n", c.ID, c.Name)
				}
				w.Flush()
			}
			if len(report.Projects) > 0 {
				fmt.Println()
				w := newTable()
				fmt.Fprintln(w, "PROJECT\tNAME")
				for _, p := range report.Projects {
					fmt.Fprintf(w, "%d\t%s\n", p.ID, p.Name)
				}
				w.Flush()
			}
			if len(report.Boards) > 0 {
				fmt.Printf("\nColumns checked against the status table (default column %q):\n", report.DefaultColumn)
				printBoardChecks(report.Boards)
			}
		}
		if report.failed {
			return fmt.Errorf("connectivity check failed")
		}
		return nil
	},
}

func printCheckLine(name, result string) {
	if result == "ok" {
		fmt.Printf("%-10s %s\n", name, ui.RenderOK(result))
		return
	}
	fmt.Printf("%-10s %s\n", name, ui.RenderError(result))
}

// boardCheck is the column report for one Kanboard project.
type boardCheck struct {
	ProjectID int64    `json:"project_id"`
	Missing   []string `json:"missing_columns,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// routedProjects returns the default project followed by every distinct
// routed project, in ascending id order.
func routedProjects(defaultID int64, rules []*model.RoutingRule) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	if defaultID > 0 {
		seen[defaultID] = true
	}
	for _, r := range rules {
		if !seen[r.ContainerID] {
			seen[r.ContainerID] = true
			ids = append(ids, r.ContainerID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if defaultID > 0 {
		ids = append([]int64{defaultID}, ids...)
	}
	return ids
}

// missingColumns returns the names in want that no board column matches,
// compared case-insensitively like the bridge resolves them.
func missingColumns(want []string, board []model.Column) []string {
	have := make(map[string]bool, len(board))
	for _, c := range board {
		have[strings.ToLower(strings.TrimSpace(c.Name))] = true
	}
	var missing []string
	for _, name := range want {
		if !have[strings.ToLower(strings.TrimSpace(name))] {
			missing = append(missing, name)
		}
	}
	return missing
}

func printBoardChecks(boards []boardCheck) {
	for _, bc := range boards {
		label := fmt.Sprintf("project %d", bc.ProjectID)
		switch {
		case bc.Error != "":
			fmt.Printf("%-10s %s\n", label, ui.RenderError(bc.Error))
		case len(bc.Missing) > 0:
			fmt.Printf("%-10s %s\n", label, ui.RenderWarn("missing columns: "+strings.Join(bc.Missing, ", ")))
		default:
			fmt.Printf("%-10s %s\n", label, ui.RenderOK("all columns present"))
		}
	}
}
