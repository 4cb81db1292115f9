package reporter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/reelguard/reelguard/internal/config"
	"github.com/reelguard/reelguard/internal/models"
	"github.com/reelguard/reelguard/pkg/utils"
)

// Source is the subset of the repository the reporter reads
type Source interface {
	GetActionsSince(since time.Time) ([]*models.ActionLog, error)
	ListTrackedPackages() ([]models.TrackedPackage, error)
}

// Reporter handles report generation
type Reporter struct {
	config *config.Config
	repo   Source
	now    func() time.Time
}

// New creates a new reporter
func New(cfg *config.Config, repo Source) *Reporter {
	return &Reporter{
		config: cfg,
		repo:   repo,
		now:    time.Now,
	}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := Period(periodType, r.now().In(r.config.Location()))
	if err != nil {
		return nil, err
	}

	// Raw rows from the database; aggregation happens here
	actions, err := r.repo.GetActionsSince(period.Start)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions: %w", err)
	}

	labels := make(map[string]string)
	if pkgs, err := r.repo.ListTrackedPackages(); err == nil {
		for _, p := range pkgs {
			labels[p.PackageName] = p.Label
		}
	}

	byPackage := make(map[string]*models.PackageSummary)
	sessions := make(map[string]bool)
	report := &models.Report{Period: *period, GeneratedAt: r.now()}

	for _, a := range actions {
		if !a.Timestamp.Before(period.End) {
			continue
		}
		s, ok := byPackage[a.PackageName]
		if !ok {
			s = &models.PackageSummary{PackageName: a.PackageName, Label: labels[a.PackageName]}
			byPackage[a.PackageName] = s
		}
		s.TriggerCount++
		if a.Success {
			s.Succeeded++
		} else {
			s.Failed++
			report.TotalFailed++
		}
		if a.Timestamp.After(s.LastTriggered) {
			s.LastTriggered = a.Timestamp
		}
		report.TotalTriggers++
		sessions[a.SessionID] = true
	}
	report.Sessions = len(sessions)

	report.Packages = make([]models.PackageSummary, 0, len(byPackage))
	for _, s := range byPackage {
		if report.TotalTriggers > 0 {
			s.Percentage = float64(s.TriggerCount) / float64(report.TotalTriggers) * 100.0
		}
		report.Packages = append(report.Packages, *s)
	}
	sort.Slice(report.Packages, func(i, j int) bool {
		a, b := report.Packages[i], report.Packages[j]
		if a.TriggerCount != b.TriggerCount {
			return a.TriggerCount > b.TriggerCount
		}
		return a.PackageName < b.PackageName
	})

	return report, nil
}

// Period calculates the time range containing now for a period type
func Period(periodType string, now time.Time) (*models.ReportPeriod, error) {
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Short-Video Report - %s\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Redirected: %d (failed: %d) across %d session(s)\n\n",
		report.TotalTriggers, report.TotalFailed, report.Sessions)

	if len(report.Packages) == 0 {
		b.WriteString("No short-form video detected in this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-30s %8s %8s %9s %12s\n", "Application", "Count", "Failed", "Percent", "Last")
	b.WriteString(strings.Repeat("-", 71) + "\n")

	now := r.now()
	for _, p := range report.Packages {
		name := p.PackageName
		if p.Label != "" {
			name = p.Label
		}
		fmt.Fprintf(&b, "%-30s %8d %8d %8.1f%% %12s\n",
			truncate(name, 30),
			p.TriggerCount,
			p.Failed,
			p.Percentage,
			utils.FormatAgo(p.LastTriggered, now))
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
