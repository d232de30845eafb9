package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func printMappingTable(mappings []*model.Mapping) {
	if len(mappings) == 0 {
		fmt.Println("No mappings found.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "OST TASK\tNUMBER\tKB TASK\tPROJECT\tOST STATUS\tKB COLUMN\tSYNCED")
	for _, m := range mappings {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			m.SourceID, m.SourceNumber, m.TargetID, m.ContainerID,
			m.LastSourceState, m.LastTargetState, m.LastSyncedAt.Local().Format(timeLayout))
	}
	w.Flush()
	fmt.Printf("\n%d mappings\n", len(mappings))
}

func printRoutingTable(rules []*model.RoutingRule) {
	if len(rules) == 0 {
		fmt.Println("No routing rules; every task goes to the default project.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "TOPIC\tTOPIC NAME\tPROJECT\tPROJECT NAME")
	for _, r := range rules {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", r.CategoryID, r.CategoryName, r.ContainerID, r.ContainerName)
	}
	w.Flush()
}

func printEventTable(evts []*model.SyncEvent) {
	if len(evts) == 0 {
		fmt.Println("No events recorded.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "TIME\tDIRECTION\tKIND\tDETAIL")
	for _, e := range evts {
		printEventRow(w, e)
	}
	w.Flush()
}

func printEventRow(w *tabwriter.Writer, e *model.SyncEvent) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		e.CreatedAt.Local().Format(timeLayout), e.Direction, ui.RenderKind(e.Kind), e.Detail)
}
