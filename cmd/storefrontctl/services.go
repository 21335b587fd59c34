package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/svenskhalsovard/storefront/core/catalog"
)

func newServicesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "services [id]",
		Short: "List the bookable services, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid service id %q", args[0])
				}
				s, ok := a.catalog.Lookup(id)
				if !ok {
					return fmt.Errorf("service %d not found", id)
				}
				a.showService(s)
				return nil
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSUBSCRIPTION")
			for _, s := range a.catalog.List() {
				sub := "-"
				if s.IsSubscription {
					sub = s.SubscriptionInterval
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.ID, s.Name, price(s), sub)
			}
			return tw.Flush()
		},
	}
	return cmd
}

func (a *app) showService(s catalog.Service) {
	a.printf("%s (%d)\n", s.Name, s.ID)
	a.printf("  %s\n", s.ShortDescription)
	a.printf("  price: %s\n", price(s))
	if s.IsSubscription {
		a.printf("  subscription: %s\n", s.SubscriptionInterval)
	}
	if len(s.Features) > 0 {
		a.printf("  includes:\n    - %s\n", strings.Join(s.Features, "\n    - "))
	}
}

func price(s catalog.Service) string {
	if s.EffectivePrice() != s.Price {
		return fmt.Sprintf("%d kr (was %d kr)", s.EffectivePrice(), s.Price)
	}
	return fmt.Sprintf("%d kr", s.Price)
}
