package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
	"caseline/internal/router"
)

func organizationCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "org",
		Aliases: []string{"organization"},
		Short:   "Manage partner organizations",
	}
	c.AddCommand(orgCreateCmd())
	c.AddCommand(orgListCmd())
	c.AddCommand(orgCandidatesCmd())
	c.AddCommand(actionCmd("get", "Get organization", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return e.GetOrganization(ctx, a, id)
	}))
	c.AddCommand(actionCmd("activate", "Activate organization", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return e.SetOrganizationActive(ctx, a, id, true)
	}))
	c.AddCommand(actionCmd("deactivate", "Deactivate organization (existing assignments are kept)", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return e.SetOrganizationActive(ctx, a, id, false)
	}))
	return c
}

func orgCreateCmd() *cobra.Command {
	var opts engine.OrganizationCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				o, err := e.CreateOrganization(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.Type, "type", "", "organization type (e.g. ngo)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "contact email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "contact phone")
	cmd.Flags().StringVar(&opts.Address, "address", "", "address")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringSliceVar(&opts.SectorsProvided, "sector", nil, "sector provided (repeatable)")
	cmd.Flags().StringSliceVar(&opts.LocationsCovered, "location", nil, "location covered (repeatable)")
	cmd.Flags().BoolVar(&opts.Active, "active", false, "activate immediately (central authorities only)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func orgListCmd() *cobra.Command {
	var f repo.OrganizationFilters
	var active string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch active {
			case "":
			case "true", "false":
				v := active == "true"
				f.Active = &v
			default:
				return fmt.Errorf("--active must be true or false")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				page, err := e.ListOrganizations(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				printOrganizations(page.Items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&active, "active", "", "true or false")
	cmd.Flags().StringVar(&f.Type, "type", "", "organization type")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}

func orgCandidatesCmd() *cobra.Command {
	var f router.Filters
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Active organizations matching a sector or location",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				orgs, err := e.FindCandidates(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(orgs)
				}
				printOrganizations(orgs)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Sector, "sector", "", "sector substring")
	cmd.Flags().StringVar(&f.Location, "location", "", "location substring")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "match name, description or tags")
	return cmd
}

func printOrganizations(orgs []domain.Organization) {
	rows := make([]table.Row, 0, len(orgs))
	for _, o := range orgs {
		rows = append(rows, table.Row{o.ID, o.Name, o.Type, o.IsActive, strings.Join(o.SectorsProvided, ", "), strings.Join(o.LocationsCovered, ", ")})
	}
	renderTable(table.Row{"ID", "Name", "Type", "Active", "Sectors", "Locations"}, rows)
}

func dashboardCmd() *cobra.Command {
	var scope repo.Scope
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show aggregate counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				d, err := e.Dashboard(ctx, actor, scope)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				rows := []table.Row{
					countsRow("cases", d.Cases),
					countsRow("registrations", d.Registrations),
					countsRow("referrals", d.Referrals),
				}
				renderTable(table.Row{"Entity", "Total", "Pending", "Approved", "Rejected", "Urgent"}, rows)
				fmt.Printf("active cases: %d  pending referrals: %d  reassignable referrals: %d\n",
					d.ActiveCases, d.PendingReferrals, d.ReassignableReferrals)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&scope.CreatedBy, "created-by", "", "only records created by this actor")
	cmd.Flags().StringVar(&scope.OrganizationID, "org", "", "only records assigned to this organization")
	return cmd
}

func countsRow(name string, c engine.EntityCounts) table.Row {
	return table.Row{
		name, c.Total,
		c.ByApprovalStatus[domain.StatusPending],
		c.ByApprovalStatus[domain.StatusApproved],
		c.ByApprovalStatus[domain.StatusRejected],
		c.Urgent,
	}
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for integrations",
	}
	c.AddCommand(apiKeyCreateCmd())
	c.AddCommand(apiKeyListCmd())
	c.AddCommand(actionCmd("revoke", "Revoke API key", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return nil, e.RevokeAPIKey(ctx, a, id)
	}))
	return c
}

func apiKeyCreateCmd() *cobra.Command {
	var opts engine.APIKeyCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key (the key is printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				k, plain, err := e.CreateAPIKey(ctx, actor, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"api_key": k, "key": plain})
				}
				fmt.Printf("id:  %s\nkey: %s\n", k.ID, plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ActorID, "for", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&opts.Role, "key-role", string(domain.RoleViewer), "role granted to the key")
	cmd.Flags().StringVar(&opts.OrganizationID, "key-org", "", "organization for organization keys")
	cmd.Flags().StringVar(&opts.Name, "name", "", "label")
	_ = cmd.MarkFlagRequired("for")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				keys, err := e.ListAPIKeys(ctx, actor, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				rows := make([]table.Row, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, table.Row{k.ID, k.Name, k.ActorID, k.Role, k.OrganizationID, k.CreatedAt})
				}
				renderTable(table.Row{"ID", "Name", "Actor", "Role", "Organization", "Created"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "for", "", "filter by actor id")
	return cmd
}
