package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/platinummonkey/estateops/pkg/automation"
)

func newRulesCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "rules",
		Description: "Validate an automation rule file",
		Flags:       flag.NewFlagSet("rules", flag.ContinueOnError),
		out:         out,
	}
	cmd.Run = func(args []string) error { return runRules(out, args) }
	return cmd
}

func runRules(out io.Writer, args []string) error {
	flags := flag.NewFlagSet("rules", flag.ContinueOnError)
	flags.SetOutput(out)
	file := flags.String("file", "", "Path to the rule file")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("--file is required")
	}

	rules, err := automation.LoadFile(*file)
	if err != nil {
		return err
	}

	perTenant := make(map[string]int)
	for _, r := range rules {
		perTenant[r.TenantID]++
	}
	tenants := make([]string, 0, len(perTenant))
	for t := range perTenant {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)

	fmt.Fprintf(out, "✓ %d rules valid\n", len(rules))
	for _, t := range tenants {
		fmt.Fprintf(out, "  %s: %d\n", t, perTenant[t])
	}
	return nil
}
