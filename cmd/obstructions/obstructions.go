package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/teachable/pkg/obstruction"
	"github.com/cyclopcam/teachable/pkg/predlog"
	"github.com/cyclopcam/teachable/server/session"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("obstructions", "Find the periods where a vehicle was held up, from its prediction track and speed log")
	samplesFile := parser.String("i", "input", &argparse.Options{Help: "CSV with columns 'Frame Time,Class Index,Speed'"})
	trackFile := parser.String("t", "track", &argparse.Options{Help: "Prediction track CSV (use with --speeds)"})
	speedsFile := parser.String("s", "speeds", &argparse.Options{Help: "Speed log CSV with columns 'Time,Speed'"})
	err := parser.Parse(os.Args)
	if err == nil && (*samplesFile == "") == (*trackFile == "" || *speedsFile == "") {
		err = fmt.Errorf("Specify either --input, or both --track and --speeds")
	}
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	var samples []obstruction.Sample
	if *samplesFile != "" {
		f, err := os.Open(*samplesFile)
		check(err)
		samples, err = obstruction.ReadSamples(f)
		f.Close()
		check(err)
	} else {
		f, err := os.Open(*trackFile)
		check(err)
		records, err := predlog.ReadTrack(f)
		f.Close()
		check(err)
		f, err = os.Open(*speedsFile)
		check(err)
		speeds, err := obstruction.ReadSpeeds(f)
		f.Close()
		check(err)
		samples, err = obstruction.JoinSpeeds(records, speeds)
		check(err)
	}

	periods := obstruction.FindPeriods(samples)
	fmt.Println(renderPeriods(periods, session.DefaultLabels))
}

func renderPeriods(periods []obstruction.Period, labels []string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Start", "End", "Duration", "Severity", "Most predicted"})
	for i := range periods {
		p := &periods[i]
		tw.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.2f", p.Start),
			fmt.Sprintf("%.2f", p.End),
			fmt.Sprintf("%.2f", p.End-p.Start),
			p.Severity,
			dominantLabel(p, labels),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tw.AppendFooter(table.Row{"", "", "", "", len(periods), "periods"})
	return tw.Render()
}

func dominantLabel(p *obstruction.Period, labels []string) string {
	class, count := p.DominantClass()
	if class == -1 {
		return ""
	}
	name := fmt.Sprintf("class %v", class)
	if class < len(labels) {
		name = labels[class]
	}
	return fmt.Sprintf("%v (%v/%v)", name, count, len(p.Classes))
}
