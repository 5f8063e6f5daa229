package bench

import (
	"strconv"
)

// Record is one benchmark answer. The judged fields are empty until Score
// runs.
type Record struct {
	RunID           string  `mapstructure:"run_id"`
	Question        string  `mapstructure:"question"`
	GeneratedAnswer string  `mapstructure:"generated_answer"`
	Plan            string  `mapstructure:"plan"`
	Duration        float64 `mapstructure:"duration (sec)"`
	Error           string  `mapstructure:"error"`
	TotalTokens     int     `mapstructure:"total_tokens"`

	ReferenceAnswer string `mapstructure:"reference_answer"`
	Verdict         bool   `mapstructure:"verdict"`
	RawJudgeOutput  string `mapstructure:"raw_judge_output"`
}

var (
	recordColumns = []string{"run_id", "question", "generated_answer", "plan", "duration (sec)", "error", "total_tokens"}
	judgedColumns = []string{"reference_answer", "verdict", "raw_judge_output"}
)

func (r Record) fields(judged bool) []string {
	out := []string{
		r.RunID,
		r.Question,
		r.GeneratedAnswer,
		r.Plan,
		strconv.FormatFloat(r.Duration, 'f', -1, 64),
		r.Error,
		strconv.Itoa(r.TotalTokens),
	}
	if judged {
		out = append(out, r.ReferenceAnswer, strconv.FormatBool(r.Verdict), r.RawJudgeOutput)
	}
	return out
}

// WriteRecords writes the results CSV. judged adds the reference answer and
// verdict columns.
func WriteRecords(path string, records []Record, judged bool) error {
	header := recordColumns
	if judged {
		header = append(append([]string{}, recordColumns...), judgedColumns...)
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.fields(judged))
	}
	return writeRows(path, header, rows)
}

func ReadRecords(path string) ([]Record, error) {
	rows, err := readRows(path)
	if err != nil {
		return nil, err
	}
	return decodeRows[Record](rows)
}
