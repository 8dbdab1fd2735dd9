// Command evmdecomp is the batch CLI front-end for the decompiler core: it
// reads bytecode (hex or a pc/opcode listing), runs the analysis, and emits
// a text, JSON, or DOT rendering of the reconstructed CFG.
package main

import (
	"fmt"
	"os"

	evmdecomp "github.com/aj3423/evmdecomp"
	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/export"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "evmdecomp",
		Usage: "static decompiler for EVM bytecode",
		Commands: []*cli.Command{
			disasmCommand(),
			decompileCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		color.Red("evmdecomp: %v", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadProgram(c *cli.Context) (*asm.Program, error) {
	strict := c.Bool("strict")
	if path := c.String("listing"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return asm.ParseListing(string(data), strict)
	}

	hexStr := c.String("hex")
	if hexStr == "" {
		if c.NArg() == 0 {
			return nil, fmt.Errorf("need --hex, --listing, or a positional hex argument")
		}
		hexStr = c.Args().First()
	}
	return asm.DisasmHex(hexStr, strict)
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "hex", Usage: "hex-encoded runtime bytecode"},
		&cli.StringFlag{Name: "listing", Usage: "path to a pc/opcode disassembly listing"},
		&cli.BoolFlag{Name: "strict", Usage: "fail on unknown opcodes / truncated pushes"},
	}
}

func disasmCommand() *cli.Command {
	return &cli.Command{
		Name:  "disasm",
		Usage: "disassemble bytecode to a flat EVMOp listing",
		Flags: commonFlags(),
		Action: func(c *cli.Context) error {
			prog, err := loadProgram(c)
			if err != nil {
				return err
			}
			for _, op := range prog.Ops {
				fmt.Println(op.String())
			}
			return nil
		},
	}
}

func decompileCommand() *cli.Command {
	return &cli.Command{
		Name:  "decompile",
		Usage: "run the full analysis and emit the reconstructed CFG",
		Flags: append(commonFlags(),
			&cli.StringFlag{Name: "format", Value: "text", Usage: "text | json | dot"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable info-level analysis logging"},
			&cli.IntFlag{Name: "max-iterations", Value: -1},
			&cli.IntFlag{Name: "bailout-seconds", Value: -1},
		),
		Action: func(c *cli.Context) error {
			prog, err := loadProgram(c)
			if err != nil {
				return err
			}

			settings := evmdecomp.DefaultSettings()
			settings.Strict = c.Bool("strict")
			settings.MaxIterations = c.Int("max-iterations")
			settings.BailoutSeconds = c.Int("bailout-seconds")

			g := evmdecomp.BuildGraph(prog)
			logger := newLogger(c.Bool("verbose"))
			defer logger.Sync() //nolint:errcheck

			g, stats, err := evmdecomp.Analyse(g, settings, logger)
			if err != nil {
				return err
			}
			if stats.BailedOut {
				color.Yellow("evmdecomp: analysis bailed out after %d iterations", stats.Iterations)
			}

			switch c.String("format") {
			case "json":
				out, err := export.JSON(g)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
			case "dot":
				fmt.Println(export.DOT(g))
			default:
				fmt.Print(export.Text(g))
			}
			return nil
		},
	}
}
