package cli

import (
	"exam_proctor_backend/internal/model"
	"exam_proctor_backend/internal/repository"
	"exam_proctor_backend/internal/util"
	"exam_proctor_backend/pkg/database"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var reportLimit int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "打印最近考试结果与作弊事件汇总",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.InitDB(&cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		return writeReport(os.Stdout, db, reportLimit)
	},
}

func writeReport(w io.Writer, db *gorm.DB, limit int) error {
	sessions, err := repository.NewExamSessionRepository(db).ListRecent(limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	verdicts, err := repository.NewExamSessionRepository(db).CountByVerdict()
	if err != nil {
		return fmt.Errorf("count verdicts: %w", err)
	}
	incidents, err := repository.NewProctorIncidentRepository(db).CountByCandidate()
	if err != nil {
		return fmt.Errorf("count incidents: %w", err)
	}

	fmt.Fprintln(w, color.CyanString("\n=== Recent Exams ==="))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Candidate", "Vacancy", "Status", "Score", "Verdict", "Incidents", "Started"})
	for _, s := range sessions {
		score, verdict := "-", "-"
		if s.IsFinalized() {
			score = strconv.Itoa(s.Score)
			verdict = colorVerdict(s.Verdict)
		}
		table.Append([]string{
			s.CandidateKey,
			s.VacancyCode,
			string(s.Status),
			score,
			verdict,
			strconv.FormatInt(incidents[s.CandidateKey], 10),
			s.StartedAt.Format(util.TimeFormat),
		})
	}
	table.Render()

	fmt.Fprintln(w, color.YellowString("\nVerdicts"))
	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Verdict", "Count"})
	for _, v := range verdicts {
		summary.Append([]string{colorVerdict(v.Verdict), strconv.FormatInt(v.Count, 10)})
	}
	summary.Render()
	return nil
}

func colorVerdict(v model.Verdict) string {
	switch v {
	case model.VerdictPassed:
		return color.GreenString(string(v))
	case model.VerdictDisqualified:
		return color.RedString(string(v))
	default:
		return color.YellowString(string(v))
	}
}
