package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/repo"
)

// actionFunc runs one workflow operation on the record named by id.
type actionFunc func(ctx context.Context, e engine.Engine, actor domain.Actor, id string, expectedVersion int) (any, error)

// actionCmd builds "<use> <id>" with the shared --expected-version flag.
func actionCmd(use, short string, run actionFunc) *cobra.Command {
	var version int
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				out, err := run(ctx, e, actor, args[0], version)
				if err != nil {
					return err
				}
				if out == nil {
					fmt.Println("ok")
					return nil
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail unless the stored version matches (0 skips the check)")
	return cmd
}

// reasonCmd is actionCmd with a required --reason flag.
func reasonCmd(use, short string, run func(ctx context.Context, e engine.Engine, actor domain.Actor, id, reason string, expectedVersion int) (any, error)) *cobra.Command {
	var reason string
	cmd := actionCmd(use, short, func(ctx context.Context, e engine.Engine, actor domain.Actor, id string, v int) (any, error) {
		return run(ctx, e, actor, id, reason, v)
	})
	cmd.Flags().StringVar(&reason, "reason", "", "reason (required)")
	return cmd
}

func changed(cmd *cobra.Command, name string, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "Manage cases",
		Long:  "Cases move submitted -> approved -> in_progress -> closed; rejection ends a submitted case. Only admins and state admins approve, reject or assign.",
	}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(actionCmd("get", "Get case", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return e.GetCase(ctx, a, id)
	}))
	c.AddCommand(caseEditCmd())
	c.AddCommand(actionCmd("delete", "Delete case", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return nil, e.DeleteCase(ctx, a, id, v)
	}))
	c.AddCommand(actionCmd("approve", "Approve case", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return e.ApproveCase(ctx, a, id, v)
	}))
	c.AddCommand(reasonCmd("reject", "Reject case", func(ctx context.Context, e engine.Engine, a domain.Actor, id, reason string, v int) (any, error) {
		return e.RejectCase(ctx, a, id, reason, v)
	}))
	c.AddCommand(caseAdvanceCmd())
	c.AddCommand(caseAssignCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a case",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.CreateCase(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "low, medium, high or urgent (default medium)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func caseListCmd() *cobra.Command {
	var f repo.CaseFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				page, err := e.ListCases(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				rows := make([]table.Row, 0, len(page.Items))
				for _, c := range page.Items {
					rows = append(rows, table.Row{c.ID, c.CaseNumber, c.Title, c.Status, c.ApprovalStatus, c.Priority, deref(c.AssignedTo)})
				}
				renderTable(table.Row{"ID", "Number", "Title", "Status", "Approval", "Priority", "Assigned"}, rows)
				fmt.Printf("%d of %d\n", len(page.Items), page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&f.Status, "status", nil, "status filter (repeatable)")
	cmd.Flags().StringVar(&f.ApprovalStatus, "approval-status", "", "approval status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.CreatedBy, "created-by", "", "creator filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assigned-to", "", "assignee filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search title, description and case number")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}

func caseEditCmd() *cobra.Command {
	var title, description, category, priority string
	var version int
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit case details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			edit := engine.CaseEdit{
				Title:       changed(cmd, "title", title),
				Description: changed(cmd, "description", description),
				Category:    changed(cmd, "category", category),
				Priority:    changed(cmd, "priority", priority),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				c, err := e.EditCase(ctx, actor, args[0], edit, version)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().IntVar(&version, "expected-version", 0, "fail unless the stored version matches")
	return cmd
}

func caseAdvanceCmd() *cobra.Command {
	var status string
	cmd := actionCmd("advance", "Move an approved case to in_progress or closed", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return e.AdvanceCase(ctx, a, id, status, v)
	})
	cmd.Flags().StringVar(&status, "status", domain.StatusInProgress, "target status (in_progress or closed)")
	return cmd
}

func caseAssignCmd() *cobra.Command {
	var user, org string
	cmd := actionCmd("assign", "Assign a case to a user or an organization", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		typ, target := string(domain.AssigneeUser), user
		if org != "" {
			typ, target = string(domain.AssigneeOrganization), org
		}
		to, err := domain.ParseAssignee(typ, target)
		if err != nil {
			return nil, err
		}
		return e.AssignCase(ctx, a, id, to, v)
	})
	cmd.Flags().StringVar(&user, "user", "", "assignee user id")
	cmd.Flags().StringVar(&org, "org", "", "assignee organization id")
	cmd.MarkFlagsOneRequired("user", "org")
	cmd.MarkFlagsMutuallyExclusive("user", "org")
	return cmd
}

func registrationCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "registration",
		Aliases: []string{"reg"},
		Short:   "Manage beneficiary registrations",
	}
	c.AddCommand(registrationCreateCmd())
	c.AddCommand(registrationListCmd())
	c.AddCommand(actionCmd("get", "Get registration", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return e.GetRegistration(ctx, a, id)
	}))
	c.AddCommand(actionCmd("delete", "Delete registration", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return nil, e.DeleteRegistration(ctx, a, id, v)
	}))
	c.AddCommand(actionCmd("approve", "Approve registration", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return e.ApproveRegistration(ctx, a, id, v)
	}))
	c.AddCommand(reasonCmd("reject", "Reject registration", func(ctx context.Context, e engine.Engine, a domain.Actor, id, reason string, v int) (any, error) {
		return e.RejectRegistration(ctx, a, id, reason, v)
	}))
	c.AddCommand(orgAssignCmd("Assign registration to an organization", func(ctx context.Context, e engine.Engine, a domain.Actor, id, org string, v int) (any, error) {
		return e.AssignRegistration(ctx, a, id, org, v)
	}))
	c.AddCommand(registrationAdvanceCmd())
	return c
}

func registrationAdvanceCmd() *cobra.Command {
	var status string
	cmd := actionCmd("advance", "Advance a registration (always rejected)", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return e.AdvanceRegistration(ctx, a, id, status, v)
	})
	cmd.Flags().StringVar(&status, "status", domain.StatusInProgress, "target status")
	return cmd
}

func registrationCreateCmd() *cobra.Command {
	var opts engine.RegistrationCreateOptions
	var household int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a beneficiary",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("household-size") {
				opts.HouseholdSize = &household
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				g, err := e.CreateRegistration(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&opts.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Address, "address", "", "address")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&household, "household-size", 0, "household size")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func registrationListCmd() *cobra.Command {
	var f repo.RegistrationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				page, err := e.ListRegistrations(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				rows := make([]table.Row, 0, len(page.Items))
				for _, g := range page.Items {
					rows = append(rows, table.Row{g.ID, g.RegistrationNumber, g.FullName, g.Phone, g.Status, deref(g.AssignedOrganizationID)})
				}
				renderTable(table.Row{"ID", "Number", "Name", "Phone", "Status", "Organization"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.AssignedOrganizationID, "org", "", "assigned organization filter")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search name, phone and number")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}

// orgAssignCmd builds "assign <id> --org <org-id>".
func orgAssignCmd(short string, run func(ctx context.Context, e engine.Engine, a domain.Actor, id, org string, v int) (any, error)) *cobra.Command {
	var org string
	cmd := actionCmd("assign", short, func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return run(ctx, e, a, id, org, v)
	})
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func referralCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "referral",
		Short: "Manage referrals",
		Long:  "Referrals are assigned to an active organization, which accepts or declines them. Declined referrals stay reassignable until another organization is assigned.",
	}
	c.AddCommand(referralCreateCmd())
	c.AddCommand(referralListCmd())
	c.AddCommand(actionCmd("get", "Get referral", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, _ int) (any, error) {
		return e.GetReferral(ctx, a, id)
	}))
	c.AddCommand(actionCmd("delete", "Delete referral", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return nil, e.DeleteReferral(ctx, a, id, v)
	}))
	c.AddCommand(orgAssignCmd("Assign referral to an organization", func(ctx context.Context, e engine.Engine, a domain.Actor, id, org string, v int) (any, error) {
		return e.AssignReferral(ctx, a, id, org, v)
	}))
	c.AddCommand(actionCmd("accept", "Accept referral for the actor's organization", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return e.AcceptReferral(ctx, a, id, v)
	}))
	c.AddCommand(reasonCmd("decline", "Decline referral", func(ctx context.Context, e engine.Engine, a domain.Actor, id, reason string, v int) (any, error) {
		return e.DeclineReferral(ctx, a, id, reason, v)
	}))
	c.AddCommand(actionCmd("complete", "Complete referral", func(ctx context.Context, e engine.Engine, a domain.Actor, id string, v int) (any, error) {
		return e.CompleteReferral(ctx, a, id, v)
	}))
	return c
}

func referralCreateCmd() *cobra.Command {
	var opts engine.ReferralCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a referral",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				r, err := e.CreateReferral(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CaseID, "case", "", "related case id")
	cmd.Flags().StringVar(&opts.ReferredFrom, "from", "", "referring party")
	cmd.Flags().StringVar(&opts.ClientName, "client", "", "client name")
	cmd.Flags().StringVar(&opts.ClientPhone, "phone", "", "client phone")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason for referral")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func referralListCmd() *cobra.Command {
	var f repo.ReferralFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List referrals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				page, err := e.ListReferrals(ctx, actor, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				rows := make([]table.Row, 0, len(page.Items))
				for _, r := range page.Items {
					rows = append(rows, table.Row{r.ID, r.ReferralNumber, r.ClientName, r.Status, r.Priority, deref(r.AssignedOrganizationID), r.CanBeReassigned})
				}
				renderTable(table.Row{"ID", "Number", "Client", "Status", "Priority", "Organization", "Reassignable"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.CaseID, "case", "", "case filter")
	cmd.Flags().StringVar(&f.AssignedOrganizationID, "org", "", "assigned organization filter")
	cmd.Flags().BoolVar(&f.Reassignable, "reassignable", false, "only declined referrals awaiting a new organization")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "search client, reason and number")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "page offset")
	return cmd
}
