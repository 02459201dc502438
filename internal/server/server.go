package server

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/auth"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/race"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

type ProgressSource interface {
	Progress(ctx context.Context) ([]race.GroupProgress, error)
}

type Deps struct {
	Progress ProgressSource
	Journal  journal.Journal
	Tokens   *auth.Issuer
	Log      zerolog.Logger
}

func New(addr string, d Deps) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewRouter serves the health check, the dashboard API and the CSV export.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log.With().Str("component", "http").Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().Str("path", c.Request.URL.Path).Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).Msg("http")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	api := r.Group("/api", requireToken(d.Tokens))
	{
		api.GET("/progress", func(c *gin.Context) {
			rows, err := d.Progress.Progress(c.Request.Context())
			if err != nil {
				log.Error().Err(err).Msg("progress")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "progress unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"groups": rows})
		})

		api.GET("/journal", func(c *gin.Context) {
			limit := defaultJournalLimit
			if raw := c.Query("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 1 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
					return
				}
				limit = min(n, maxJournalLimit)
			}
			events, err := d.Journal.Recent(c.Request.Context(), limit)
			if err != nil {
				log.Error().Err(err).Msg("journal")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"events": events})
		})
	}

	export := r.Group("/export", requireToken(d.Tokens))
	{
		export.GET("/progress.csv", func(c *gin.Context) {
			rows, err := d.Progress.Progress(c.Request.Context())
			if err != nil {
				log.Error().Err(err).Msg("export")
				c.String(http.StatusInternalServerError, "progress unavailable")
				return
			}
			c.Header("Content-Type", "text/csv; charset=utf-8")
			c.Header("Content-Disposition", `attachment; filename="progress.csv"`)
			c.Status(http.StatusOK)
			if err := writeProgressCSV(c.Writer, rows); err != nil {
				log.Error().Err(err).Msg("export")
			}
		})
	}

	return r
}

// requireToken accepts a dashboard token as ?token= or as a bearer header.
func requireToken(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := c.Query("token")
		if tok == "" {
			parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tok = parts[1]
			}
		}
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}
		cl, err := iss.Verify(tok)
		if errors.Is(err, auth.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad token"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token check failed"})
			return
		}
		c.Set("admin", cl.Username)
		c.Next()
	}
}

func writeProgressCSV(w http.ResponseWriter, rows []race.GroupProgress) error {
	cw := csv.NewWriter(w)
	header := []string{"group_id", "name", "direction", "current_location", "location_name",
		"challenges_completed", "challenges_skipped", "bonus_completed",
		"started", "loop_completed", "ended", "start_time", "end_time"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range rows {
		rec := []string{
			p.ID, p.Name, p.Direction, strconv.Itoa(p.CurrentLocation), p.LocationName,
			strconv.Itoa(p.Completed), strconv.Itoa(p.Skipped), strconv.Itoa(p.Bonus),
			strconv.FormatBool(p.Started), strconv.FormatBool(p.LoopCompleted), strconv.FormatBool(p.Ended),
			formatTime(p.StartTime), formatTime(p.EndTime),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
