package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MMOzz/OSTKanBridge/internal/model"
	"github.com/MMOzz/OSTKanBridge/internal/store"
)

var routesCmd = &cobra.Command{
	Use:     "routes",
	Short:   "Manage help topic to Kanboard project routing",
	GroupID: "admin",
}

var routesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List routing rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, s store.Store) error {
			rules, err := s.ListRoutingRules(ctx)
			if err != nil {
				return fmt.Errorf("listing routing rules: %w", err)
			}
			if jsonOutput {
				printJSON(rules)
			} else {
				printRoutingTable(rules)
			}
			return nil
		})
	},
}

var routesSetCmd = &cobra.Command{
	Use:   "set <topic-id> <project-id>",
	Short: "Route tasks of a help topic to a Kanboard project",
	Long: `Route tasks of a help topic to a Kanboard project.

Tasks whose help topic has no rule go to BRIDGE_KANBOARD_DEFAULT_PROJECT.

Without --topic-name or --project-name the names are looked up in
osTicket and Kanboard, and an id that neither system knows is rejected.

Examples:
  kbridge routes set 5 9
  kbridge routes set 5 9 --topic-name "Hardware" --project-name "IT Ops"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rule := &model.RoutingRule{}
		var err error
		if rule.CategoryID, err = parseID("topic-id", args[0]); err != nil {
			return err
		}
		if rule.ContainerID, err = parseID("project-id", args[1]); err != nil {
			return err
		}
		rule.CategoryName, _ = cmd.Flags().GetString("topic-name")
		rule.ContainerName, _ = cmd.Flags().GetString("project-name")
		if rule.CategoryName == "" || rule.ContainerName == "" {
			if err := lookupRouteNames(rule); err != nil {
				return err
			}
		}
		if err := model.ValidateRoutingRule(rule); err != nil {
			return err
		}

		return withStore(func(ctx context.Context, s store.Store) error {
			if err := s.UpsertRoutingRule(ctx, rule); err != nil {
				return fmt.Errorf("saving routing rule: %w", err)
			}
			if jsonOutput {
				printJSON(rule)
			} else {
				fmt.Printf("Help topic %d (%s) -> Kanboard project %d (%s)\n",
					rule.CategoryID, rule.CategoryName, rule.ContainerID, rule.ContainerName)
			}
			return nil
		})
	},
}

var routesDeleteCmd = &cobra.Command{
	Use:   "delete <topic-id>",
	Short: "Delete a routing rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID("topic-id", args[0])
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, s store.Store) error {
			if err := s.DeleteRoutingRule(ctx, id); err != nil {
				if store.IsNotFound(err) {
					return fmt.Errorf("no routing rule for help topic %d", id)
				}
				return fmt.Errorf("deleting routing rule: %w", err)
			}
			fmt.Printf("Deleted routing rule for help topic %d\n", id)
			return nil
		})
	},
}

func init() {
	routesSetCmd.Flags().String("topic-name", "", "help topic name, for display")
	routesSetCmd.Flags().String("project-name", "", "Kanboard project name, for display")

	routesCmd.AddCommand(routesListCmd, routesSetCmd, routesDeleteCmd)
}

type categoryLister interface {
	ListCategories(ctx context.Context) ([]model.Category, error)
}

type containerLister interface {
	ListContainers(ctx context.Context) ([]model.Container, error)
}

// lookupRouteNames connects to osTicket and Kanboard to fill the names the
// flags left empty.
func lookupRouteNames(rule *model.RoutingRule) error {
	if err := cfg.RequireBridge(); err != nil {
		return fmt.Errorf("resolving names (or pass --topic-name and --project-name): %w", err)
	}
	source, err := newOSTicket()
	if err != nil {
		return fmt.Errorf("open osTicket database: %w", err)
	}
	defer source.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.HTTPTimeout+5*time.Second)
	defer cancel()
	return resolveRouteNames(ctx, rule, source, newKanboard())
}

// resolveRouteNames fills empty display names on rule from the live help
// topic and project lists. Unknown ids are an error.
func resolveRouteNames(ctx context.Context, rule *model.RoutingRule, topics categoryLister, projects containerLister) error {
	if rule.CategoryName == "" {
		cats, err := topics.ListCategories(ctx)
		if err != nil {
			return fmt.Errorf("listing help topics: %w", err)
		}
		for _, c := range cats {
			if c.ID == rule.CategoryID {
				rule.CategoryName = c.Name
				break
			}
		}
		if rule.CategoryName == "" {
			return fmt.Errorf("no osTicket help topic %d", rule.CategoryID)
		}
	}
	if rule.ContainerName == "" {
		list, err := projects.ListContainers(ctx)
		if err != nil {
			return fmt.Errorf("listing Kanboard projects: %w", err)
		}
		for _, p := range list {
			if p.ID == rule.ContainerID {
				rule.ContainerName = p.Name
				break
			}
		}
		if rule.ContainerName == "" {
			return fmt.Errorf("no Kanboard project %d", rule.ContainerID)
		}
	}
	return nil
}

func parseID(name, v string) (int64, error) {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", name, v)
	}
	return id, nil
}
