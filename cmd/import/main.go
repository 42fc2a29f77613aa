package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ikkim/catalog-admin/config"
	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/internal/app/repository"
	"github.com/ikkim/catalog-admin/internal/app/service"
	"github.com/ikkim/catalog-admin/internal/db"
	"github.com/ikkim/catalog-admin/internal/storage"
	"github.com/ikkim/catalog-admin/pkg/catalogapi"
	"github.com/ikkim/catalog-admin/pkg/logger"
)

const usage = `Usage: go run ./cmd/import [flags] <sheet.csv|sheet.xlsx> [images.zip ...]
       go run ./cmd/import -template <out.xlsx>`

// consolePublisher prints batch transitions as they happen.
type consolePublisher struct{}

func (consolePublisher) PublishImportEvent(e service.ImportEvent) {
	line := fmt.Sprintf("  -> %s (rows: %d, errors: %d)", e.State, e.Rows, e.Errors)
	if e.Message != "" {
		line += ": " + e.Message
	}
	fmt.Println(line)
}

func main() {
	yes := flag.Bool("yes", false, "save without asking for confirmation")
	dropErrors := flag.Bool("drop-errors", false, "delete rows the catalog flagged instead of aborting")
	userID := flag.Uint("user", 0, "admin id recorded on the batch")
	template := flag.String("template", "", "write the XLSX import template to this path and exit")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *template != "" {
		if err := writeTemplate(*template); err != nil {
			log.Fatal("Failed to write template: ", err)
		}
		fmt.Printf("Template written to %s\n", *template)
		return
	}

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	sheetPath, zipPaths := flag.Arg(0), flag.Args()[1:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if err := logger.Initialize(logger.Config{Level: "warn", Format: "console", Output: "stderr"}); err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations: ", err)
	}

	store, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage: ", err)
	}
	catalog, err := catalogapi.NewClient(catalogapi.Config{
		BaseURL:      cfg.Catalog.BaseURL,
		ServiceToken: cfg.Catalog.ServiceToken,
		Timeout:      cfg.Catalog.Timeout,
	})
	if err != nil {
		log.Fatal("Failed to create catalog client: ", err)
	}

	stager := service.NewUploadStager(store, repository.NewStagedUploadRepository(db.GetDB()))
	importService := service.NewImportService(
		repository.NewImportBatchRepository(db.GetDB()),
		stager,
		catalog,
		consolePublisher{},
		cfg.Upload.MaxImportBytes,
	)

	if err := run(ctx, importService, uint(*userID), sheetPath, zipPaths, *yes, *dropErrors); err != nil {
		log.Fatal("Import failed: ", err)
	}
}

func run(ctx context.Context, imports service.ImportService, userID uint, sheetPath string, zipPaths []string, yes, dropErrors bool) error {
	batch, err := imports.CreateBatch(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Printf("Import batch %s\n", batch.ID)

	keep := false
	defer func() {
		if keep {
			return
		}
		// release staged files on every exit but a successful save
		if err := imports.Discard(context.WithoutCancel(ctx), batch.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discard batch %s: %v\n", batch.ID, err)
		}
	}()

	for _, p := range zipPaths {
		f, err := service.LocalFile(p)
		if err != nil {
			return err
		}
		fmt.Printf("Attaching %s\n", f.Filename)
		if _, err := imports.AttachZip(ctx, batch.ID, f); err != nil {
			return err
		}
	}

	sheet, err := service.LocalFile(sheetPath)
	if err != nil {
		return err
	}
	fmt.Printf("Attaching %s\n", sheet.Filename)
	if _, err := imports.AttachFile(ctx, batch.ID, sheet); err != nil {
		return err
	}

	fmt.Println("Requesting preview from the catalog...")
	batch, err = imports.Preview(ctx, batch.ID)
	if err != nil {
		return err
	}
	printRows(batch)

	if batch.HasErrors() {
		if !dropErrors {
			return fmt.Errorf("%d of %d rows have errors; fix the sheet or rerun with -drop-errors",
				batch.ErrorCount(), batch.RowCount())
		}
		if batch, err = deleteErrorRows(ctx, imports, batch); err != nil {
			return err
		}
		fmt.Printf("Dropped rows with errors, %d rows left\n", batch.RowCount())
	}
	if batch.RowCount() == 0 {
		return service.ErrImportEmpty
	}

	if !yes {
		fmt.Printf("Save %d rows in %d products? (yes/no): ", batch.RowCount(), len(batch.Groups))
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return nil
		}
	}

	if _, err := imports.Save(ctx, batch.ID); err != nil {
		return err
	}
	keep = true
	fmt.Println("Import completed successfully!")
	return nil
}

// deleteErrorRows walks backwards so earlier indexes stay valid.
func deleteErrorRows(ctx context.Context, imports service.ImportService, batch *model.ImportBatch) (*model.ImportBatch, error) {
	var flagged []int
	i := 0
	for _, g := range batch.Groups {
		for _, r := range g.ProductDetails {
			if r.IsError {
				flagged = append(flagged, i)
			}
			i++
		}
	}

	var err error
	for j := len(flagged) - 1; j >= 0; j-- {
		if batch, err = imports.DeleteRow(ctx, batch.ID, flagged[j]); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func printRows(batch *model.ImportBatch) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPRODUCT\tCATEGORY\tCOLOR\tSIZE\tPRICE\tQTY\tSTATUS")
	i := 0
	for _, g := range batch.Groups {
		for _, r := range g.ProductDetails {
			status := "ok"
			if r.IsError {
				status = "ERROR: " + r.ErrorMessage
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				i, r.ProductTitle, g.Category, r.Color, r.Size, r.Price, r.Quantity, status)
			i++
		}
	}
	w.Flush()
}

func writeTemplate(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := service.WriteImportTemplate(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
