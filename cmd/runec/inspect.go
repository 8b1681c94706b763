package main

import (
	"fmt"

	"github.com/spf13/cobra"

	runevm "github.com/venkatezh-13/rune"
	"github.com/venkatezh-13/rune/api"
)

func (c *rootCommand) newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module-file>",
		Short: "Decode a module and print its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.loadModule(args[0])
			if err != nil {
				return err
			}
			m, err := runevm.DecodeModule(data)
			if err != nil {
				return err
			}

			max := "unbounded"
			if m.MaxMemoryPages != 0 {
				max = fmt.Sprintf("%d pages", m.MaxMemoryPages)
			}
			fmt.Fprintf(c.stdout, "memory: initial %d pages, max %s\n", m.InitialMemoryPages, max)

			fmt.Fprintf(c.stdout, "functions: %d\n", len(m.Functions))
			for i, fn := range m.Functions {
				fmt.Fprintf(c.stdout, "  [%d] %s %s (%d instructions)\n",
					i, fn.Name, formatType(&fn.Type), len(fn.Body))
			}

			fmt.Fprintf(c.stdout, "exports: %d\n", len(m.Exports))
			for _, e := range m.Exports {
				fmt.Fprintf(c.stdout, "  %s -> %d\n", e.Name, e.Index)
			}

			fmt.Fprintf(c.stdout, "data segments: %d\n", len(m.DataSegments))
			return nil
		},
	}
}

func formatType(t *api.FunctionType) string {
	params := ""
	for i, p := range t.Params {
		if i > 0 {
			params += ", "
		}
		params += api.ValueKindName(p)
	}
	if k, ok := t.ResultKind(); ok {
		return fmt.Sprintf("(%s) -> %s", params, api.ValueKindName(k))
	}
	return fmt.Sprintf("(%s)", params)
}
