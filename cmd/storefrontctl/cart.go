package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/svenskhalsovard/storefront/core/cart"
)

func newCartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showCart()
		},
	}

	var subscription bool
	add := &cobra.Command{
		Use:   "add <service-id>",
		Short: "Add one of a service to the cart",
		Long: `Add one of a service to the cart. Adding a service that is already in the
cart with the same purchase type raises its quantity.

Examples:
  storefrontctl cart add 3
  storefrontctl cart add 5 --subscription`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid service id %q", args[0])
			}

			s, ok := a.catalog.Lookup(id)
			if !ok {
				return fmt.Errorf("service %d not found", id)
			}

			pt := cart.OneTime
			if subscription {
				if !s.IsSubscription {
					return fmt.Errorf("%s cannot be bought as a subscription", s.Name)
				}
				pt = cart.Subscription
			}

			a.store.Cart.Add(s, pt)
			return a.showCart()
		},
	}
	add.Flags().BoolVarP(&subscription, "subscription", "s", false, "buy as a subscription")

	remove := &cobra.Command{
		Use:   "remove <line-id>",
		Short: "Remove a line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.store.Cart.Remove(args[0])
			return a.showCart()
		},
	}

	qty := &cobra.Command{
		Use:   "qty <line-id> <quantity>",
		Short: "Set the quantity of a line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			if _, ok := a.store.Cart.Line(args[0]); !ok {
				return fmt.Errorf("line %s is not in the cart", args[0])
			}
			if err := a.store.Cart.UpdateQuantity(args[0], n); err != nil {
				return err
			}
			return a.showCart()
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.store.Cart.Clear()
			a.printf("cart cleared\n")
			return nil
		},
	}

	cmd.AddCommand(add, remove, qty, clearCmd)
	return cmd
}

func (a *app) showCart() error {
	v := cart.Summarize(a.store.Cart)
	if len(v.Items) == 0 {
		a.printf("the cart is empty\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tSERVICE\tTYPE\tQTY\tAMOUNT")
	for _, ln := range v.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d kr\n",
			ln.ID, ln.Service.Name, ln.PurchaseType, ln.Quantity, ln.Service.EffectivePrice()*ln.Quantity)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	a.printf("\n%d items, total %d kr\n", v.ItemCount, v.Total)
	if v.HasSubscriptionItems {
		a.printf("the cart contains subscriptions\n")
	}
	return nil
}
