package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
	"github.com/relicta-tech/lockable/internal/pool"
)

// resourceView is the rendered form of a resource.
type resourceView struct {
	Name        string     `json:"name" yaml:"name"`
	State       string     `json:"state" yaml:"state"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Labels      []string   `json:"labels,omitempty" yaml:"labels,omitempty"`
	Note        string     `json:"note,omitempty" yaml:"note,omitempty"`
	Ephemeral   bool       `json:"ephemeral,omitempty" yaml:"ephemeral,omitempty"`
	ReservedBy  string     `json:"reserved_by,omitempty" yaml:"reserved_by,omitempty"`
	Stolen      bool       `json:"stolen,omitempty" yaml:"stolen,omitempty"`
	Build       string     `json:"build,omitempty" yaml:"build,omitempty"`
	Since       *time.Time `json:"since,omitempty" yaml:"since,omitempty"`
	QueueItemID int64      `json:"queue_item_id,omitempty" yaml:"queue_item_id,omitempty"`
	Project     string     `json:"queue_project,omitempty" yaml:"queue_project,omitempty"`
	Cause       string     `json:"cause,omitempty" yaml:"cause,omitempty"`
}

func newResourceView(ctx context.Context, r *resource.Resource) resourceView {
	return resourceView{
		Name:        r.Name(),
		State:       string(r.OwnershipState()),
		Description: r.Description(),
		Labels:      r.LabelList(),
		Note:        r.Note(),
		Ephemeral:   r.IsEphemeral(),
		ReservedBy:  r.ReservedBy(),
		Stolen:      r.IsStolen(),
		Build:       r.BuildName(ctx),
		Since:       r.ReservedTimestamp(),
		QueueItemID: r.QueueItemID(),
		Project:     r.QueueItemProject(),
		Cause:       r.LockCause(),
	}
}

// stateLabel renders an ownership state for humans, e.g. "Reserved And Locked".
func stateLabel(state string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(state, "_", " "))
}

var statusCmd = &cobra.Command{
	Use:   "status [resource]...",
	Short: "Show resource ownership",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPool(cmd.Context(), func(ctx context.Context, m *pool.Manager) error {
			var rs []*resource.Resource
			if len(args) > 0 {
				var err error
				rs, err = m.Select(ctx, pool.Selector{Names: args})
				if err != nil {
					return err
				}
			} else {
				rs = m.Resources()
			}
			views := make([]resourceView, 0, len(rs))
			for _, r := range rs {
				views = append(views, newResourceView(ctx, r))
			}
			return renderViews(cmd.OutOrStdout(), cfg.Output.Format, views)
		})
	},
}

// renderViews writes views in the given format.
func renderViews(w io.Writer, format string, views []resourceView) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(views)
	case "", "table":
		return renderTable(w, views)
	default:
		return lrerrors.Validation("cli.render", fmt.Sprintf("unknown output format %q", format))
	}
}

func renderTable(w io.Writer, views []resourceView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, styles.Subtle.Render("No resources configured."))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tHOLDER\tBUILD\tQUEUED\tLABELS\tNOTE")
	for _, v := range views {
		state := stateLabel(v.State)
		if v.Stolen {
			state += " (stolen)"
		}
		queued := "-"
		if v.QueueItemID != resource.NotQueued {
			queued = fmt.Sprintf("%d", v.QueueItemID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Name, state, dash(v.ReservedBy), dash(v.Build), queued, dash(strings.Join(v.Labels, " ")), v.Note)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
