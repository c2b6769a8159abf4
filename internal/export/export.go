// Package export builds the evidence bundle of an asset: a manifest of its
// facts, regimes and requirement instances with a canonical content hash.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/klauspost/compress/zip"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"policykernel/internal/compliance/facts"
	"policykernel/internal/compliance/models"
	"policykernel/internal/compliance/regime"
	complianceservice "policykernel/internal/compliance/service"
	id "policykernel/pkg/domain"
	dErrors "policykernel/pkg/domain-errors"
	"policykernel/pkg/requestcontext"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatZip  Format = "zip"
)

// ParseFormat defaults to JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatZip:
		return FormatZip, nil
	default:
		return "", dErrors.New(dErrors.CodeBadRequest, "format must be json, csv or zip")
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatZip:
		return "application/zip"
	default:
		return "application/json"
	}
}

// Manifest is the exported evidence of one asset. Hash covers every field
// except GeneratedAt and Hash itself.
type Manifest struct {
	AssetID     id.AssetID                    `json:"assetId"`
	GeneratedAt time.Time                     `json:"generatedAt"`
	Facts       facts.Facts                   `json:"facts"`
	Regimes     []regime.Ref                  `json:"regimes"`
	Instances   []*models.RequirementInstance `json:"instances"`
	Counters    models.Counters               `json:"counters"`
	Hash        string                        `json:"hash"`
}

type hashedContent struct {
	AssetID   id.AssetID                    `json:"assetId"`
	Facts     facts.Facts                   `json:"facts"`
	Regimes   []regime.Ref                  `json:"regimes"`
	Instances []*models.RequirementInstance `json:"instances"`
	Counters  models.Counters               `json:"counters"`
}

// ComputeHash returns the SHA-256 of the RFC 8785 canonical form of m.
func ComputeHash(m *Manifest) (string, error) {
	raw, err := json.Marshal(hashedContent{
		AssetID:   m.AssetID,
		Facts:     m.Facts,
		Regimes:   m.Regimes,
		Instances: m.Instances,
		Counters:  m.Counters,
	})
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

type Compliance interface {
	Assess(ctx context.Context, assetID id.AssetID) (*complianceservice.Assessment, error)
	List(ctx context.Context, filter models.Filter, page models.Page) (*models.ListResult, error)
}

type Exporter struct {
	compliance Compliance
	logger     *slog.Logger
	tracer     trace.Tracer
}

type Option func(*Exporter)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func New(compliance Compliance, opts ...Option) *Exporter {
	e := &Exporter{
		compliance: compliance,
		logger:     slog.Default(),
		tracer:     otel.Tracer("policykernel/export"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Manifest loads the assessment and every stored instance of the asset,
// including issuance snapshots, and seals them with a content hash.
func (e *Exporter) Manifest(ctx context.Context, assetID id.AssetID) (*Manifest, error) {
	ctx, span := e.tracer.Start(ctx, "export.Manifest",
		trace.WithAttributes(attribute.String("asset_id", assetID.String())))
	defer span.End()

	var (
		assessment *complianceservice.Assessment
		instances  []*models.RequirementInstance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := e.compliance.Assess(gctx, assetID)
		assessment = a
		return err
	})
	g.Go(func() error {
		all, err := e.instances(gctx, assetID)
		instances = all
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	regimes := append([]regime.Ref{}, assessment.Regimes...)
	sort.Slice(regimes, func(i, j int) bool {
		if regimes[i].ID != regimes[j].ID {
			return regimes[i].ID < regimes[j].ID
		}
		return regimes[i].Version < regimes[j].Version
	})
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].TemplateID != instances[j].TemplateID {
			return instances[i].TemplateID < instances[j].TemplateID
		}
		return instances[i].ID.String() < instances[j].ID.String()
	})

	m := &Manifest{
		AssetID:     assetID,
		GeneratedAt: requestcontext.Now(ctx),
		Facts:       assessment.Facts,
		Regimes:     regimes,
		Instances:   instances,
		Counters:    assessment.Counters,
	}
	hash, err := ComputeHash(m)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash manifest")
	}
	m.Hash = hash

	e.logger.InfoContext(ctx, "evidence manifest built",
		"request_id", requestcontext.RequestID(ctx),
		"asset_id", assetID.String(),
		"instances", len(instances),
		"hash", hash,
	)
	return m, nil
}

func (e *Exporter) instances(ctx context.Context, assetID id.AssetID) ([]*models.RequirementInstance, error) {
	filter := models.Filter{AssetID: &assetID, Scope: models.ScopeAll}
	out := []*models.RequirementInstance{}
	for offset := 0; ; {
		page, err := e.compliance.List(ctx, filter, models.Page{Limit: models.MaxPageLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			return out, nil
		}
	}
}

// Write renders m in the given format.
func Write(w io.Writer, m *Manifest, f Format) error {
	switch f {
	case FormatCSV:
		return writeCSV(w, m.Instances)
	case FormatZip:
		return writeZip(w, m)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
}

var csvHeader = []string{
	"id", "requirementTemplateId", "regimeId", "regimeVersion", "issuanceId", "status",
	"rationale", "exceptionReason", "evidenceRefs", "requiresPlatformAcknowledgement",
	"platformAcknowledged", "platformAcknowledgedBy", "platformAcknowledgedAt", "createdAt", "updatedAt",
}

func writeCSV(w io.Writer, instances []*models.RequirementInstance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, inst := range instances {
		var issuanceID, ackAt string
		if inst.IssuanceID != nil {
			issuanceID = inst.IssuanceID.String()
		}
		if inst.PlatformAcknowledgedAt != nil {
			ackAt = inst.PlatformAcknowledgedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			inst.ID.String(),
			inst.TemplateID,
			inst.RegimeID,
			inst.RegimeVersion,
			issuanceID,
			string(inst.Status),
			inst.Rationale,
			inst.ExceptionReason,
			strings.Join(inst.EvidenceRefs, ";"),
			strconv.FormatBool(inst.RequiresPlatformAck),
			strconv.FormatBool(inst.PlatformAcknowledged),
			inst.PlatformAcknowledgedBy,
			ackAt,
			inst.CreatedAt.UTC().Format(time.RFC3339),
			inst.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeZip writes manifest.json, instances.csv and a SHA256SUMS file
// listing both. Entry timestamps are the manifest's so bundles of the same
// manifest are byte-identical.
func writeZip(w io.Writer, m *Manifest) error {
	var manifestBuf, csvBuf strings.Builder
	if err := Write(&manifestBuf, m, FormatJSON); err != nil {
		return err
	}
	if err := writeCSV(&csvBuf, m.Instances); err != nil {
		return err
	}
	files := []struct{ name, body string }{
		{"manifest.json", manifestBuf.String()},
		{"instances.csv", csvBuf.String()},
	}
	var sums strings.Builder
	for _, f := range files {
		sum := sha256.Sum256([]byte(f.body))
		fmt.Fprintf(&sums, "%s  %s\n", hex.EncodeToString(sum[:]), f.name)
	}
	files = append(files, struct{ name, body string }{"SHA256SUMS", sums.String()})

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.name,
			Method:   zip.Deflate,
			Modified: m.GeneratedAt,
		})
		if err != nil {
			return err
		}
		if _, err := io.WriteString(fw, f.body); err != nil {
			return err
		}
	}
	return zw.Close()
}
