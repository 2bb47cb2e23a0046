package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"slotline/internal/app"
	"slotline/internal/config"
	"slotline/internal/db"
	"slotline/internal/domain"
	"slotline/internal/engine"
	"slotline/internal/repo"
	"slotline/internal/server"
	"slotline/internal/slotgen"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Slotline CLI",
	Long: `Slotline negotiates meeting times between a team and its clients.
- Space: a workspace shared by internal members and client members.
- Proposal: a title, a duration and a handful of candidate slots sent to respondents.
- Respondents answer each slot with available, unavailable_but_proceed or unavailable.
- Confirm: once every required respondent agrees on a slot, an organizer books it.
- Event log: every change is recorded, view it with 'sl log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SLOTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "log-json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(spaceCmd())
	rootCmd.AddCommand(slotsCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace config",
		Long:  "slotline.yml holds scheduling defaults, negotiation limits, video providers and event sinks.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default slotline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate slotline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				fmt.Println("database up to date")
				return nil
			})
		},
	}
}

func spaceCmd() *cobra.Command {
	sp := &cobra.Command{Use: "space", Short: "Spaces and membership"}
	sp.AddCommand(spaceSeedCmd())
	sp.AddCommand(spaceMembersCmd())
	return sp
}

func spaceSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Create or update a space and its members from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := app.LoadSeed(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				space, err := rt.Engine.SeedSpace(ctx, seed)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(space)
				}
				fmt.Printf("space %s seeded with %d members\n", space.ID, len(seed.Members))
				return nil
			})
		},
	}
	return cmd
}

func spaceMembersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <space-id>",
		Short: "List space members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				members, err := rt.Engine.Repo.ListSpaceMembers(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Actor", "Role"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ActorID, m.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

type generateFlags struct {
	from, to, timezone string
	busyFile           string
	startHour, endHour int
	step, max          int
}

func (g *generateFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&g.from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&g.to, "to", "", "last date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVar(&g.timezone, "timezone", "", "IANA timezone for business hours (default from config)")
	cmd.Flags().StringVar(&g.busyFile, "busy", "", "JSON file with [{start,end}] busy intervals")
	cmd.Flags().IntVar(&g.startHour, "business-start", -1, "business day start hour")
	cmd.Flags().IntVar(&g.endHour, "business-end", -1, "business day end hour")
	cmd.Flags().IntVar(&g.step, "step", 0, "minutes between candidate starts")
	cmd.Flags().IntVar(&g.max, "max", 0, "maximum candidates")
}

func (g *generateFlags) options(duration int) ([]slotgen.Interval, slotgen.Options, error) {
	opts := slotgen.Options{
		StartDate:       g.from,
		EndDate:         g.to,
		DurationMinutes: duration,
		StepMinutes:     g.step,
		MaxResults:      g.max,
	}
	if g.startHour >= 0 {
		h := g.startHour
		opts.BusinessHourStart = &h
	}
	if g.endHour >= 0 {
		h := g.endHour
		opts.BusinessHourEnd = &h
	}
	if g.timezone != "" {
		loc, err := time.LoadLocation(g.timezone)
		if err != nil {
			return nil, opts, fmt.Errorf("timezone: %w", err)
		}
		opts.Location = loc
	}
	var busy []slotgen.Interval
	if g.busyFile != "" {
		data, err := os.ReadFile(g.busyFile)
		if err != nil {
			return nil, opts, err
		}
		if err := json.Unmarshal(data, &busy); err != nil {
			return nil, opts, fmt.Errorf("busy file: %w", err)
		}
	}
	return busy, opts, nil
}

func slotsCmd() *cobra.Command {
	s := &cobra.Command{Use: "slots", Short: "Candidate slot generation"}
	var g generateFlags
	var duration int
	gen := &cobra.Command{
		Use:   "generate",
		Short: "List free weekday slots between two dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			busy, opts, err := g.options(duration)
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				candidates := rt.Engine.GenerateSlots(busy, opts)
				if viper.GetBool("json") {
					return printJSON(candidates)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Date", "Start", "End"})
				for _, c := range candidates {
					tw.AppendRow(table.Row{c.DateKey, c.StartAt.Format(time.RFC3339), c.EndAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	g.bind(gen)
	gen.Flags().IntVar(&duration, "duration", 30, "slot length in minutes")
	s.AddCommand(gen)
	return s
}

func proposalCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "proposal",
		Short: "Negotiate meeting proposals",
	}
	p.AddCommand(proposalCreateCmd())
	p.AddCommand(proposalListCmd())
	p.AddCommand(proposalShowCmd())
	p.AddCommand(proposalRespondCmd())
	p.AddCommand(proposalConfirmCmd())
	p.AddCommand(proposalCancelCmd())
	return p
}

// parseSlot reads "start/end" with RFC3339 timestamps.
func parseSlot(s string) (engine.SlotInput, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return engine.SlotInput{}, fmt.Errorf("slot %q must be start/end", s)
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
	if err != nil {
		return engine.SlotInput{}, fmt.Errorf("slot start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
	if err != nil {
		return engine.SlotInput{}, fmt.Errorf("slot end: %w", err)
	}
	return engine.SlotInput{StartAt: start, EndAt: end}, nil
}

// parseRespondent reads "actor:side" or "actor:side:optional".
func parseRespondent(s string) (engine.RespondentInput, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return engine.RespondentInput{}, fmt.Errorf("respondent %q must be actor:side[:optional]", s)
	}
	in := engine.RespondentInput{ActorID: parts[0], Side: domain.Side(parts[1])}
	if len(parts) == 3 {
		if parts[2] != "optional" {
			return engine.RespondentInput{}, fmt.Errorf("respondent %q: unknown flag %q", s, parts[2])
		}
		req := false
		in.Required = &req
	}
	return in, nil
}

func proposalCreateCmd() *cobra.Command {
	var in engine.CreateInput
	var slots, respondents []string
	var expires string
	var g generateFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ActorID = viper.GetString("actor-id")
			for _, s := range slots {
				slot, err := parseSlot(s)
				if err != nil {
					return err
				}
				in.Slots = append(in.Slots, slot)
			}
			for _, r := range respondents {
				resp, err := parseRespondent(r)
				if err != nil {
					return err
				}
				in.Respondents = append(in.Respondents, resp)
			}
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("expires-at: %w", err)
				}
				in.ExpiresAt = &t
			}
			if len(in.Slots) == 0 && g.from != "" {
				busy, opts, err := g.options(in.DurationMinutes)
				if err != nil {
					return err
				}
				in.GenerateFrom = &engine.GenerateInput{Busy: busy, Options: opts}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				p, err := rt.Engine.CreateProposal(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Println(p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.SpaceID, "space", "", "space id")
	cmd.Flags().StringVar(&in.ID, "id", "", "proposal id (generated when empty)")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().IntVar(&in.DurationMinutes, "duration", 30, "meeting length in minutes")
	cmd.Flags().StringVar(&in.VideoProvider, "video-provider", "", "configured video provider name")
	cmd.Flags().StringVar(&expires, "expires-at", "", "RFC3339 expiry")
	cmd.Flags().StringArrayVar(&slots, "slot", nil, "candidate slot start/end (repeatable)")
	cmd.Flags().StringArrayVar(&respondents, "respondent", nil, "actor:side[:optional] (repeatable)")
	g.bind(cmd)
	return cmd
}

func proposalListCmd() *cobra.Command {
	var spaceID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals in a space",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.ListProposals(ctx, spaceID, viper.GetString("actor-id"), domain.ProposalStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				now := rt.Engine.Now()
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Expires", "Created By"})
				for _, p := range items {
					expires := ""
					if p.ExpiresAt != nil {
						expires = p.ExpiresAt.Format(time.RFC3339)
						if p.IsExpired(now) {
							expires += " (expired)"
						}
					}
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, expires, p.CreatedBy})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&spaceID, "space", "", "space id")
	cmd.Flags().StringVar(&status, "status", "", "status filter (open, confirmed, cancelled)")
	return cmd
}

func proposalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <proposal-id>",
		Short: "Show slots, respondents and responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d, err := rt.Engine.GetDetail(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("%s  %s  [%s]\n", d.Proposal.ID, d.Proposal.Title, d.Proposal.Status)
				if d.Expired {
					fmt.Println("expired")
				}
				header := table.Row{"Slot", "Start", "End"}
				for _, r := range d.Respondents {
					label := r.DisplayName
					if !r.Required {
						label += " (optional)"
					}
					header = append(header, label)
				}
				header = append(header, "Agreed")
				tw := newTable()
				tw.AppendHeader(header)
				for _, s := range d.Slots {
					answers := map[string]string{}
					for _, resp := range s.Responses {
						answers[resp.RespondentID] = string(resp.Value)
					}
					row := table.Row{s.ID, s.StartAt.Format(time.RFC3339), s.EndAt.Format(time.RFC3339)}
					for _, r := range d.Respondents {
						row = append(row, answers[r.ID])
					}
					row = append(row, s.Agreed)
					tw.AppendRow(row)
				}
				tw.Render()
				return nil
			})
		},
	}
}

func proposalRespondCmd() *cobra.Command {
	var answers []string
	var client bool
	cmd := &cobra.Command{
		Use:   "respond <proposal-id>",
		Short: "Submit availability for one or more slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.SubmitInput{ProposalID: args[0], ActorID: viper.GetString("actor-id"), Via: engine.ViaInternal}
			if client {
				in.Via = engine.ViaClient
			}
			for _, a := range answers {
				slotID, value, ok := strings.Cut(a, "=")
				if !ok {
					return fmt.Errorf("answer %q must be slot=response", a)
				}
				in.Responses = append(in.Responses, engine.ResponseInput{SlotID: slotID, Response: domain.ResponseValue(value)})
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.SubmitResponses(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("updated %d responses\n", res.UpdatedCount)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&answers, "answer", nil, "slot=available|unavailable_but_proceed|unavailable (repeatable)")
	cmd.Flags().BoolVar(&client, "client", false, "respond through the client portal path")
	return cmd
}

func proposalConfirmCmd() *cobra.Command {
	var slotID string
	cmd := &cobra.Command{
		Use:   "confirm <proposal-id>",
		Short: "Confirm a slot every required respondent agreed to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				res, err := rt.Engine.Confirm(ctx, args[0], slotID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("confirmed %s at %s (meeting %s)\n", res.ProposalID, res.SlotStart.Format(time.RFC3339), res.MeetingID)
				if res.MeetingURL != nil {
					fmt.Println("join:", *res.MeetingURL)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&slotID, "slot", "", "slot id")
	return cmd
}

func proposalCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <proposal-id>",
		Short: "Cancel an open proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Engine.Cancel(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("cancelled", args[0])
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every proposal change: creation, responses, confirmation, cancellation and video provisioning.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	var spaceID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events from your spaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			if spaceID != "" {
				f.SpaceIDs = []string{spaceID}
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				events, err := rt.Engine.ListEvents(ctx, viper.GetString("actor-id"), f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&spaceID, "space", "", "space filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Mint an API bearer token signed with SLOTLINE_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.SignToken(viper.GetString("jwt_secret"), args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var legacyHeader, devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				authCfg := server.AuthConfig{
					JWTSecret:              viper.GetString("jwt_secret"),
					AllowLegacyActorHeader: legacyHeader,
					EnableDevLogin:         devLogin,
					Logger:                 rt.Logger,
				}
				if authCfg.JWTSecret == "" && !legacyHeader {
					return fmt.Errorf("SLOTLINE_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				dispatcher, err := rt.Outbox()
				if err != nil {
					return err
				}
				if dispatcher != nil {
					go dispatcher.Run(ctx)
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving slotline api", "addr", addr, "base_path", basePath, "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&legacyHeader, "allow-actor-header", false, "trust X-Actor-Id without a token (local use only)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	logger, err := app.NewLogger(os.Stderr, viper.GetString("log-level"), viper.GetBool("log-json"))
	if err != nil {
		return err
	}
	rt, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
