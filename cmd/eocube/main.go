// eocube drives the extraction pipeline from a single JSON5 configuration:
// it provisions the task bus and the status table, searches the scene
// catalogs, partitions the region into tiles, plans and prepares the
// extraction, and publishes the tasks to the worker fleet.
//
// Tasks compose and always run in pipeline order:
//
//	eocube --config=cropland.json5 stac tile schedule prepare deploy
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	cli "github.com/urfave/cli/v2"

	"github.com/eocube/eocube/go/config"
	"github.com/eocube/eocube/go/skerr"
	"github.com/eocube/eocube/go/sklog"
	"github.com/eocube/eocube/go/sklog/sklogimpl"
	"github.com/eocube/eocube/go/sklog/stdlogging"
	"github.com/eocube/eocube/go/urfavecli"
	"github.com/eocube/eocube/go/util"
)

// taskOrder is the pipeline order. Requested tasks run in this order no
// matter how they are passed on the command line.
var taskOrder = []string{"build", "stac", "tile", "schedule", "prepare", "deploy"}

// pipelineFlags holds the command line flags shared by every task.
type pipelineFlags struct {
	ConfigPath string
	Overwrite  bool
	Workers    int
}

func (flags *pipelineFlags) AsCliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Destination: &flags.ConfigPath,
			Name:        "config",
			Usage:       "The path of the JSON5 pipeline configuration.",
			Required:    true,
		},
		&cli.BoolFlag{
			Destination: &flags.Overwrite,
			Name:        "overwrite",
			Usage:       "Regenerate artifacts and archive arrays that already exist.",
		},
		&cli.IntFlag{
			Destination: &flags.Workers,
			Name:        "workers",
			Value:       runtime.NumCPU(),
			Usage:       "How many tiles or tasks to process concurrently.",
		},
	}
}

func main() {
	var flags pipelineFlags
	cli.MarkdownDocTemplate = urfavecli.MarkdownDocTemplate
	app := &cli.App{
		Name:      "eocube",
		Usage:     "Command line tool that drives the imagery extraction pipeline.",
		UsageText: "eocube --config <path> [--overwrite] [--workers N] task [task...]",
		Flags:     flags.AsCliFlags(),
		Before: func(c *cli.Context) error {
			// Log to stdout.
			sklogimpl.SetLogger(stdlogging.New(os.Stdout))
			return nil
		},
		Action: func(c *cli.Context) error {
			urfavecli.LogFlags(c)
			requested, err := requestedTasks(c.Args().Slice())
			if err != nil {
				return err
			}
			cfg := &config.Config{}
			if err := config.LoadFromJSON5(cfg, flags.ConfigPath); err != nil {
				return err
			}
			sklog.Infof("Dataset %s at %s.", cfg.DatasetName, cfg.StoragePath())
			p := newPipeline(cfg, &flags)
			for _, task := range taskOrder {
				if !requested[task] {
					continue
				}
				sklog.Infof("Running task %s.", task)
				if err := p.runTask(c.Context, task); err != nil {
					return skerr.Wrapf(err, "task %s", task)
				}
			}
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Printf("\nError: %s\n", err.Error())
		os.Exit(2)
	}
}

// requestedTasks validates and deduplicates the task arguments.
func requestedTasks(args []string) (map[string]bool, error) {
	if len(args) == 0 {
		return nil, skerr.Fmt("no tasks given; choose from %s", strings.Join(taskOrder, ", "))
	}
	requested := map[string]bool{}
	for _, arg := range args {
		if !util.In(arg, taskOrder) {
			return nil, skerr.Fmt("unknown task %q; choose from %s", arg, strings.Join(taskOrder, ", "))
		}
		requested[arg] = true
	}
	return requested, nil
}
