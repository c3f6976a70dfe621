package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/offer-extractor/internal/bootstrap"
	"github.com/spherical/offer-extractor/internal/domain"
	"github.com/spherical/offer-extractor/internal/offers"
)

// newOffersCmd creates the offers command group.
func newOffersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offers",
		Short: "List and delete stored offers",
	}
	cmd.AddCommand(newOffersListCmd(), newOffersDeleteCmd(), newOffersPurgeCmd())
	return cmd
}

func withStore(fn func(ctx context.Context, sink *offers.Sink) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := bootstrap.NewStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(ctx, app.Sink)
}

func newOffersListCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored offers, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, sink *offers.Sink) error {
				records, err := sink.All(ctx)
				if err != nil {
					return err
				}
				if source != "" {
					records = filterBySource(records, offers.NormalizeFilename(source))
				}

				if outputJSON {
					return ui.JSON(records)
				}
				if len(records) == 0 {
					ui.Info("No offers stored")
					return nil
				}
				ui.Table(offerHeaders, offerRows(records))
				ui.Info("%d offers", len(records))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "only show offers from this flyer")
	return cmd
}

func newOffersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a single offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, sink *offers.Sink) error {
				if err := sink.Delete(ctx, args[0]); err != nil {
					if errors.Is(err, offers.ErrNotFound) {
						return fmt.Errorf("offer %s not found", args[0])
					}
					return err
				}
				if outputJSON {
					return ui.JSON(map[string]any{"deleted": 1, "id": args[0]})
				}
				ui.Success("Offer %s deleted", args[0])
				return nil
			})
		},
	}
}

func newOffersPurgeCmd() *cobra.Command {
	var (
		source string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all offers of one flyer, or every offer with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (source == "") == !all {
				return domain.ValidationError("exactly one of --source or --all is required", nil)
			}

			return withStore(func(ctx context.Context, sink *offers.Sink) error {
				var (
					deleted int64
					err     error
					label   = "All offers"
				)
				if all {
					deleted, err = sink.PurgeAll(ctx)
				} else {
					label = "Offers from " + offers.NormalizeFilename(source)
					deleted, err = sink.PurgeBySource(ctx, source)
				}
				if err != nil {
					return err
				}

				if outputJSON {
					return ui.JSON(map[string]any{"deleted": deleted})
				}
				ui.Success("%s deleted (%d rows)", label, deleted)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "flyer filename whose offers are deleted")
	cmd.Flags().BoolVar(&all, "all", false, "delete every stored offer")
	return cmd
}

var offerHeaders = []string{"ID", "Store", "Product", "Brand", "Quantity", "Price", "Was", "Valid", "Source"}

func offerRows(records []domain.OfferRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.StoreName,
			r.ProductName,
			deref(r.Brand),
			deref(r.Quantity),
			formatPrice(&r.Price),
			formatPrice(r.OriginalPrice),
			r.OfferDateStart.String() + "/" + r.OfferDateEnd.String(),
			r.SourceFile,
		})
	}
	return rows
}

func filterBySource(records []domain.OfferRecord, source string) []domain.OfferRecord {
	out := records[:0]
	for _, r := range records {
		if r.SourceFile == source {
			out = append(out, r)
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatPrice(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}
