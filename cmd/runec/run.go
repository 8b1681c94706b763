package main

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	runevm "github.com/venkatezh-13/rune"
	"github.com/venkatezh-13/rune/api"
)

func (c *rootCommand) newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <module-file> <export-name> [i32 args...]",
		Short: "Run an exported function of a module",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.loadModule(args[0])
			if err != nil {
				return err
			}
			m, err := runevm.DecodeModule(data)
			if err != nil {
				return err
			}

			callArgs := make([]api.Value, 0, len(args)-2)
			for _, raw := range args[2:] {
				v, err := strconv.ParseInt(raw, 10, 32)
				if err != nil {
					return fmt.Errorf("argument %q is not an i32: %w", raw, err)
				}
				callArgs = append(callArgs, api.I32(int32(v)))
			}

			inst, err := runevm.NewRuntime().Instantiate(m)
			if err != nil {
				return err
			}

			c.logger.WithFields(logrus.Fields{
				"export": args[1],
				"args":   len(callArgs),
			}).Debug("calling export")

			result, err := inst.Call(args[1], callArgs...)
			if err != nil {
				return err
			}
			if result.Valid() {
				fmt.Fprintln(c.stdout, formatValue(result))
			}
			return nil
		},
	}
	return cmd
}

func formatValue(v api.Value) string {
	switch v.Kind() {
	case api.ValueKindI32:
		return strconv.FormatInt(int64(v.AsI32()), 10)
	case api.ValueKindI64:
		return strconv.FormatInt(v.AsI64(), 10)
	case api.ValueKindF32:
		return strconv.FormatFloat(float64(v.AsF32()), 'g', -1, 32)
	case api.ValueKindF64:
		return strconv.FormatFloat(v.AsF64(), 'g', -1, 64)
	}
	return "(void)"
}
