package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/harga-pangan/console/internal/apiclient"
	"github.com/harga-pangan/console/internal/dataset"
	"github.com/harga-pangan/console/internal/komoditas"
	"github.com/harga-pangan/console/internal/models"
	"github.com/harga-pangan/console/internal/session"
	"github.com/harga-pangan/console/internal/views"
	"github.com/harga-pangan/console/internal/workflow"
)

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.session.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (%s), home %s\n", user.Username, user.Role(), session.HomeRoute(user))
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	a.session.Logout()
	fmt.Println("Logged out")
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	info := a.session.Info()
	if !info.Authenticated {
		fmt.Println("Not logged in")
		return nil
	}
	fmt.Printf("%s (%s), session expires %s\n", info.User.Username, info.User.Role(), info.Expiry.Format(time.RFC3339))
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("register")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	confirm := fs.String("confirm", "", "password confirmation (defaults to -p)")
	isAdmin := fs.Bool("admin", false, "create an admin account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *confirm == "" {
		*confirm = *password
	}

	msg, err := a.session.Register(ctx, *username, *password, *confirm, *isAdmin)
	if err != nil {
		return err
	}
	fmt.Println(msg)
	return nil
}

func runUpload(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("upload")
	name := fs.String("komoditas", "", "commodity name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireArg(fs, *name, "komoditas"); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return flagError("a single CSV file is required")
	}
	path := fs.Arg(0)

	preview, err := inspect(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d rows, columns %v\n", filepath.Base(path), preview.RowCount, preview.Columns)

	if err := a.workflow.Refresh(ctx); err != nil {
		return err
	}

	events, unsubscribe := a.workflow.Subscribe(64)
	defer unsubscribe()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	slot, err := a.workflow.Upload(ctx, *name, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %s: %d rows accepted\n", slot.Komoditas, slot.RowCount)

	printSnapshot(a.workflow.Snapshot())
	if a.workflow.Polling() {
		return waitForTraining(ctx, a.workflow, events)
	}
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("delete")
	name := fs.String("komoditas", "", "commodity name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireArg(fs, *name, "komoditas"); err != nil {
		return err
	}

	if err := a.workflow.Refresh(ctx); err != nil {
		return err
	}
	if err := a.workflow.Delete(ctx, *name); err != nil {
		return err
	}
	fmt.Println(a.workflow.Message())
	return nil
}

func runPreprocess(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("preprocess")
	train := fs.Bool("train", a.cfg.Workflow.AutoTrain, "start training when preprocessing succeeds")
	wait := fs.Bool("wait", false, "wait for training to finish")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.withWorkflow(false, *train)
	if err := a.workflow.Refresh(ctx); err != nil {
		return err
	}

	events, unsubscribe := a.workflow.Subscribe(64)
	defer unsubscribe()

	err := a.workflow.Preprocess(ctx)
	printResults(a.workflow.Snapshot().Results)
	if err != nil {
		return err
	}
	fmt.Println(a.workflow.Message())

	if *wait && a.workflow.Polling() {
		return waitForTraining(ctx, a.workflow, events)
	}
	return nil
}

// runTrain preprocesses first: preprocessing state lives only as long as
// the controller does.
func runTrain(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("train")
	name := fs.String("komoditas", "", "train a single commodity (default: all)")
	wait := fs.Bool("wait", false, "wait for training to finish")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.withWorkflow(false, false)
	if err := a.workflow.Refresh(ctx); err != nil {
		return err
	}
	if st := a.workflow.State(); st.Phase == workflow.PhaseTraining {
		return flagError("training is already running, use `pangan status -wait`")
	}

	events, unsubscribe := a.workflow.Subscribe(64)
	defer unsubscribe()

	if err := a.workflow.Preprocess(ctx); err != nil {
		printResults(a.workflow.Snapshot().Results)
		return err
	}
	if err := a.workflow.Train(ctx, *name); err != nil {
		return err
	}
	fmt.Println(a.workflow.Message())

	if *wait {
		return waitForTraining(ctx, a.workflow, events)
	}
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("status")
	wait := fs.Bool("wait", false, "wait for a running training job to finish")
	if err := fs.Parse(args); err != nil {
		return err
	}

	events, unsubscribe := a.workflow.Subscribe(64)
	defer unsubscribe()

	if err := a.workflow.Refresh(ctx); err != nil {
		return err
	}
	printSnapshot(a.workflow.Snapshot())

	if *wait && a.workflow.Polling() {
		return waitForTraining(ctx, a.workflow, events)
	}
	return nil
}

func runPredict(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("predict")
	name := fs.String("komoditas", "", "commodity name")
	days := fs.Int("days", 7, "forecast window: 3, 7 or 30")
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := views.NewPredictionView(a.client, a.session).Predict(ctx, *name, *days)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(result)
	}
	printPrediction(result)
	return nil
}

func runFuture(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("future")
	name := fs.String("komoditas", "", "commodity name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	result, err := views.NewPredictionView(a.client, a.session).Future(ctx, *name)
	if err != nil {
		return err
	}
	printPrediction(result)
	return nil
}

func runHistory(ctx context.Context, a *app, args []string) error {
	entries, err := views.NewHistoryView(a.client, a.session).Load(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KOMODITAS\tTRAINED\tNEXT\tDAYS LEFT\tMODEL")
	for _, e := range entries {
		model := "-"
		if e.ModelExists {
			model = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", komoditas.DisplayName(e.Komoditas), e.TrainingDate, e.NextTrainingDate, e.DaysUntilNextTraining, model)
	}
	return tw.Flush()
}

func runPlots(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("plots")
	name := fs.String("komoditas", "", "commodity name")
	out := fs.String("out", ".", "directory the PNG files are written to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	view := views.NewHistoryView(a.client, a.session)
	urls, err := view.Plots(*name)
	if err != nil {
		return err
	}

	key := komoditas.Normalize(urls.Komoditas)
	files := map[string]string{
		urls.TrainingHistory: key + "_" + apiclient.PlotTrainingHistory + ".png",
		urls.Prediction:      key + "_prediction.png",
	}
	for plotPath, fileName := range files {
		data, _, err := view.Image(ctx, plotPath)
		if err != nil {
			return err
		}
		dest := filepath.Join(*out, fileName)
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return err
		}
		fmt.Printf("Saved %s (%d bytes)\n", dest, len(data))
	}
	return nil
}

func runScrape(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("scrape")
	days := fs.Int("days", 7, "days back to scrape (1-365)")
	yes := fs.Bool("yes", false, "scrape even when the commodity mapping has problems")
	if err := fs.Parse(args); err != nil {
		return err
	}

	view := views.NewScrapingView(a.client)
	result, err := view.Run(ctx, *days, *yes)
	if errors.Is(err, views.ErrConfirmationRequired) {
		mapping := view.Overview().Mapping
		if mapping != nil {
			fmt.Printf("Missing: %v\nInvalid: %v\n", mapping.MissingKomoditas, mapping.InvalidMappings)
		}
		return fmt.Errorf("%s (rerun with -yes)", views.ErrConfirmationRequired.Message)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Saved %d rows\n", result.DataSaved)
	if len(result.FailedDates) > 0 {
		fmt.Printf("Failed dates: %v\n", result.FailedDates)
	}
	return nil
}

func runDataStatus(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("data-status")
	days := fs.Int("days", views.DefaultStatusDays, "days of coverage to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	overview, err := views.NewScrapingView(a.client).Load(ctx, *days)
	if err != nil {
		return err
	}
	if overview.Mapping != nil && !overview.Mapping.OK() {
		fmt.Printf("Mapping: %s, missing %v\n", overview.Mapping.Status, overview.Mapping.MissingKomoditas)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TANGGAL\tDATA\tSTATUS")
	for _, day := range overview.Status.Days {
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\n", day.Tanggal, day.JumlahData, overview.Status.TotalRequired, day.Class)
	}
	return tw.Flush()
}

func runInspect(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return flagError("usage: pangan " + commands["inspect"].usage)
	}
	preview, err := inspect(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(preview)
}

func inspect(ctx context.Context, path string) (*models.DatasetPreview, error) {
	inspector, err := dataset.NewInspector()
	if err != nil {
		return nil, err
	}
	defer inspector.Close()
	return inspector.Inspect(ctx, path)
}

// waitForTraining prints progress until the training job ends. Polling can
// also stop without a terminal status (session ended, token rejected).
func waitForTraining(ctx context.Context, ctrl *workflow.Controller, events <-chan workflow.Event) error {
	check := time.NewTicker(time.Second)
	defer check.Stop()

	idle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case workflow.EvProgress:
				if ev.Job != nil {
					fmt.Printf("Training %d%% %s\n", ev.Job.Progress, ev.Job.Message)
				}
			case workflow.EvTrainCompleted:
				fmt.Println(ev.Message)
				return nil
			case workflow.EvTrainFailed:
				return fmt.Errorf("%s", ev.Message)
			case workflow.EvTrainAbandoned:
				return fmt.Errorf("training status unknown: %s", ev.Message)
			}
		case <-check.C:
			if ctrl.Polling() {
				idle = 0
				continue
			}
			// the terminal event trails the poller's release by a moment
			if idle++; idle >= 2 {
				return fmt.Errorf("training status unknown: %s", ctrl.Message())
			}
		}
	}
}

func printSnapshot(snap workflow.Snapshot) {
	fmt.Printf("Workflow: %s\n", snap.State)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KOMODITAS\tFILE\tROWS")
	for _, slot := range snap.Slots {
		if !slot.Uploaded {
			fmt.Fprintf(tw, "%s\t-\t-\n", slot.Komoditas)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", slot.Komoditas, slot.Filename, slot.RowCount)
	}
	tw.Flush()

	if snap.Job.Status != "" && snap.Job.Status != models.TrainingIdle {
		fmt.Printf("Training: %s %d%% %s\n", snap.Job.Status, snap.Job.Progress, snap.Job.Message)
	}
	if snap.Message != "" {
		fmt.Println(snap.Message)
	}
}

func printResults(results []models.PreprocessResult) {
	if len(results) == 0 {
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KOMODITAS\tSTATUS\tROWS\tERROR")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", komoditas.DisplayName(r.Komoditas), r.Status, r.Rows, r.Error)
	}
	tw.Flush()
}

func printPrediction(result *models.PredictionResult) {
	fmt.Printf("%s, %d hari\n", result.Komoditas, result.FilterDays)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TANGGAL\tPREDIKSI")
	for _, p := range result.Predictions {
		fmt.Fprintf(tw, "%s\tRp %.0f\n", p.Date, p.PredictedPrice)
	}
	tw.Flush()

	if s := result.Stats; s != nil {
		fmt.Printf("Max Rp %.0f  Min Rp %.0f  Avg Rp %.0f  Trend %+.0f (%+.2f%%)\n", s.Max, s.Min, s.Avg, s.Trend, s.TrendPercentage)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func flagError(msg string) error {
	return errors.New(msg)
}
