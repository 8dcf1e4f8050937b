package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/clock-correlator/core"
	"github.com/signalsfoundry/clock-correlator/ephem"
	"github.com/signalsfoundry/clock-correlator/model"
)

// CorrelationResult is the printed form of one correlation attempt.
type CorrelationResult struct {
	RunID string `json:"run_id" yaml:"run_id"`

	StationID   int64   `json:"station_id" yaml:"station_id"`
	TargetErt   string  `json:"target_ert" yaml:"target_ert"`
	SclkCoarse  int64   `json:"sclk_coarse" yaml:"sclk_coarse"`
	SclkFine    int64   `json:"sclk_fine" yaml:"sclk_fine"`
	EncodedSclk float64 `json:"encoded_sclk" yaml:"encoded_sclk"`
	OWLT        float64 `json:"owlt_sec" yaml:"owlt_sec"`
	TfOffset    float64 `json:"tf_offset_sec" yaml:"tf_offset_sec"`
	TdtG        float64 `json:"tdt_g" yaml:"tdt_g"`
	TdtGLabel   string  `json:"tdt_g_label" yaml:"tdt_g_label"`

	RateMode         string `json:"rate_mode" yaml:"rate_mode"`
	Rate             string `json:"clock_change_rate" yaml:"clock_change_rate"`
	InterpolatedRate string `json:"interpolated_rate,omitempty" yaml:"interpolated_rate,omitempty"`
	DriftMsPerDay    string `json:"drift_ms_per_day,omitempty" yaml:"drift_ms_per_day,omitempty"`

	Candidates int   `json:"candidates" yaml:"candidates"`
	Rejections int   `json:"rejections" yaml:"rejections"`
	Committed  bool  `json:"committed" yaml:"committed"`
	Seq        int64 `json:"seq,omitempty" yaml:"seq,omitempty"`
}

// HistoryRow is the printed form of one history record.
type HistoryRow struct {
	Seq         int64   `json:"seq" yaml:"seq"`
	SclkCoarse  int64   `json:"sclk_coarse" yaml:"sclk_coarse"`
	SclkFine    int64   `json:"sclk_fine" yaml:"sclk_fine"`
	EncodedSclk float64 `json:"encoded_sclk" yaml:"encoded_sclk"`
	TdtG        float64 `json:"tdt_g" yaml:"tdt_g"`
	Rate        string  `json:"clock_change_rate" yaml:"clock_change_rate"`
	RateMode    string  `json:"rate_mode" yaml:"rate_mode"`
	CreatedAt   string  `json:"created_at" yaml:"created_at"`
}

func newCorrelationResult(res *core.Result) CorrelationResult {
	out := CorrelationResult{
		RunID:       res.RunID,
		StationID:   res.Target.StationID,
		TargetErt:   res.Target.Sample.ErtLabel(),
		SclkCoarse:  res.Target.Sample.TkSclkCoarse,
		SclkFine:    res.Target.Sample.TkSclkFine,
		EncodedSclk: res.Target.EncodedSclk,
		OWLT:        res.Target.OWLT,
		TfOffset:    res.Target.TfOffset,
		TdtG:        res.Target.TdtG,
		TdtGLabel:   ephem.TDTLabel(res.Target.TdtG).Format(model.ErtLayout),
		RateMode:    string(res.Rate.Mode),
		Rate:        res.Rate.Rate.StringFixed(core.RateScale),
		Candidates:  res.Candidates,
		Rejections:  len(res.Rejections),
	}
	if res.Rate.InterpolatedRate != nil {
		out.InterpolatedRate = res.Rate.InterpolatedRate.StringFixed(core.RateScale)
	}
	if res.Rate.DriftMsPerDay != nil {
		out.DriftMsPerDay = res.Rate.DriftMsPerDay.StringFixed(6)
	}
	return out
}

func newHistoryRows(records []model.HistoryRecord) []HistoryRow {
	rows := make([]HistoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, HistoryRow{
			Seq:         r.Seq,
			SclkCoarse:  r.SclkCoarse,
			SclkFine:    r.SclkFine,
			EncodedSclk: r.EncodedSclk,
			TdtG:        r.TdtG,
			Rate:        r.ClockChangeRate,
			RateMode:    string(r.RateMode),
			CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows
}

func outputResult(w io.Writer, result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(w, result)
	case "yaml":
		return outputYAML(w, result)
	default:
		return outputTable(w, result)
	}
}

func outputJSON(w io.Writer, result interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(w io.Writer, result interface{}) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func outputTable(out io.Writer, result interface{}) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case CorrelationResult:
		return outputCorrelationTable(w, r)
	case []HistoryRow:
		return outputHistoryTable(w, r)
	case HistoryRow:
		return outputHistoryTable(w, []HistoryRow{r})
	default:
		return fmt.Errorf("no table layout for %T", result)
	}
}

func outputCorrelationTable(w io.Writer, r CorrelationResult) error {
	rows := [][2]string{
		{"RUN ID", r.RunID},
		{"STATION", fmt.Sprintf("%d", r.StationID)},
		{"TARGET ERT", r.TargetErt},
		{"SCLK", fmt.Sprintf("%d:%d", r.SclkCoarse, r.SclkFine)},
		{"ENCODED SCLK", fmt.Sprintf("%.0f", r.EncodedSclk)},
		{"OWLT (s)", fmt.Sprintf("%.9f", r.OWLT)},
		{"TF OFFSET (s)", fmt.Sprintf("%.9f", r.TfOffset)},
		{"TDT(G)", fmt.Sprintf("%.6f (%s)", r.TdtG, r.TdtGLabel)},
		{"RATE MODE", r.RateMode},
		{"CLOCK CHANGE RATE", r.Rate},
	}
	if r.InterpolatedRate != "" {
		rows = append(rows, [2]string{"INTERPOLATED RATE", r.InterpolatedRate})
	}
	if r.DriftMsPerDay != "" {
		rows = append(rows, [2]string{"DRIFT (ms/day)", r.DriftMsPerDay})
	}
	rows = append(rows,
		[2]string{"CANDIDATES", fmt.Sprintf("%d (%d rejected)", r.Candidates, r.Rejections)},
		[2]string{"COMMITTED", fmt.Sprintf("%t", r.Committed)},
	)
	if r.Committed {
		rows = append(rows, [2]string{"SEQ", fmt.Sprintf("%d", r.Seq)})
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	return nil
}

func outputHistoryTable(w io.Writer, rows []HistoryRow) error {
	fmt.Fprintln(w, "SEQ\tSCLK\tENCODED SCLK\tTDT(G)\tRATE\tMODE\tCREATED")
	for _, r := range rows {
		fmt.Fprintf(w, "%d\t%d:%d\t%.0f\t%.6f\t%s\t%s\t%s\n",
			r.Seq, r.SclkCoarse, r.SclkFine, r.EncodedSclk, r.TdtG, r.Rate, r.RateMode, r.CreatedAt)
	}
	return nil
}
