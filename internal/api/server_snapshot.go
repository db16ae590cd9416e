package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/liqmap_bridge/internal/heatmap"
	"github.com/dgnsrekt/liqmap_bridge/internal/snapshot"
)

type listSnapshotsInput struct {
	Symbol     string `query:"symbol" doc:"Only artifacts for this symbol"`
	TimePeriod string `query:"time_period" doc:"Only artifacts for this window, e.g. 24h or 24 hour"`
	Limit      int    `query:"limit" minimum:"0" maximum:"500" doc:"Maximum artifacts to return, newest first (0 = all)"`
}

type listSnapshotsOutput struct {
	Body struct {
		Count     int                     `json:"count"`
		Snapshots []snapshot.SnapshotMeta `json:"snapshots"`
	}
}

type snapshotIDInput struct {
	SnapshotID string `path:"snapshot_id" doc:"Artifact UUID"`
}

type snapshotMetaOutput struct {
	Body snapshot.SnapshotMeta
}

type snapshotImageOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	CacheControl       string `header:"Cache-Control"`
	Body               []byte
}

func registerSnapshotHandlers(api huma.API, svc Service) {
	tags := []string{"Snapshots"}

	huma.Register(api, huma.Operation{
		OperationID: "list-snapshots",
		Method:      http.MethodGet,
		Path:        "/api/v1/snapshots",
		Summary:     "List captured heatmap artifacts",
		Tags:        tags,
	}, func(ctx context.Context, input *listSnapshotsInput) (*listSnapshotsOutput, error) {
		metas, err := svc.ListSnapshots(ctx)
		if err != nil {
			return nil, mapErr(err)
		}
		filtered, err := filterSnapshots(metas, input)
		if err != nil {
			return nil, mapErr(err)
		}
		out := &listSnapshotsOutput{}
		out.Body.Snapshots = filtered
		out.Body.Count = len(filtered)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/v1/snapshots/{snapshot_id}",
		Summary:     "Get artifact metadata",
		Tags:        tags,
	}, func(ctx context.Context, input *snapshotIDInput) (*snapshotMetaOutput, error) {
		meta, err := svc.GetSnapshot(ctx, input.SnapshotID)
		if err != nil {
			return nil, mapErr(err)
		}
		return &snapshotMetaOutput{Body: meta}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot-image",
		Method:      http.MethodGet,
		Path:        "/api/v1/snapshots/{snapshot_id}/image",
		Summary:     "Download the captured heatmap image",
		Tags:        tags,
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Heatmap image",
				Content: map[string]*huma.MediaType{
					"image/png":  {Schema: &huma.Schema{Type: "string", Format: "binary"}},
					"image/jpeg": {Schema: &huma.Schema{Type: "string", Format: "binary"}},
				},
			},
		},
	}, func(ctx context.Context, input *snapshotIDInput) (*snapshotImageOutput, error) {
		data, format, err := svc.ReadSnapshotImage(ctx, input.SnapshotID)
		if err != nil {
			return nil, mapErr(err)
		}
		ext, ct := "png", "image/png"
		if format == "jpeg" {
			ext, ct = "jpg", "image/jpeg"
		}
		return &snapshotImageOutput{
			ContentType:        ct,
			ContentDisposition: fmt.Sprintf(`inline; filename="%s.%s"`, input.SnapshotID, ext),
			// Artifacts are immutable once written.
			CacheControl: "private, max-age=86400, immutable",
			Body:         data,
		}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-snapshot",
		Method:        http.MethodDelete,
		Path:          "/api/v1/snapshots/{snapshot_id}",
		Summary:       "Delete an artifact",
		Tags:          tags,
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *snapshotIDInput) (*struct{}, error) {
		if err := svc.DeleteSnapshot(ctx, input.SnapshotID); err != nil {
			return nil, mapErr(err)
		}
		return &struct{}{}, nil
	})
}

// filterSnapshots applies the list query to metas, which arrive newest first.
func filterSnapshots(metas []snapshot.SnapshotMeta, in *listSnapshotsInput) ([]snapshot.SnapshotMeta, error) {
	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	var period string
	if strings.TrimSpace(in.TimePeriod) != "" {
		p, err := heatmap.ParseTimePeriod(in.TimePeriod)
		if err != nil {
			return nil, err
		}
		period = string(p)
	}

	out := make([]snapshot.SnapshotMeta, 0, len(metas))
	for _, m := range metas {
		if symbol != "" && m.Symbol != symbol {
			continue
		}
		if period != "" && m.TimePeriod != period {
			continue
		}
		out = append(out, m)
		if in.Limit > 0 && len(out) == in.Limit {
			break
		}
	}
	return out, nil
}
