package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	CompressionLevel int      // gzip level, 1-9
	PathPrefixes     []string // only these routes are compressed
}

// DefaultCompressionConfig compresses the JSON API. /metrics/prometheus is
// left alone because promhttp negotiates its own encoding.
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		CompressionLevel: gzip.DefaultCompression,
		PathPrefixes:     []string{"/api/"},
	}
}

// CompressionMiddleware gzips responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	cm := &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
	}
	cm.pool.New = func() interface{} {
		gz, err := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		if err != nil {
			gz = gzip.NewWriter(io.Discard)
		}
		return gz
	}
	return cm
}

// Handler returns the gin middleware
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cm.shouldCompress(c) {
			c.Next()
			return
		}

		gz := cm.pool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)

		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")

		writer := &gzipWriter{ResponseWriter: c.Writer, gz: gz}
		c.Writer = writer

		defer func() {
			if writer.raw == 0 {
				// nothing was written, so no gzip stream either
				c.Writer.Header().Del("Content-Encoding")
				gz.Reset(io.Discard)
			} else {
				gz.Close()
			}
			cm.pool.Put(gz)
			cm.stats.record(writer.raw, int64(writer.ResponseWriter.Size()))
		}()

		c.Next()
	}
}

func (cm *CompressionMiddleware) shouldCompress(c *gin.Context) bool {
	if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
		return false
	}
	if c.GetHeader("Connection") == "Upgrade" {
		return false
	}
	for _, prefix := range cm.config.PathPrefixes {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

type gzipWriter struct {
	gin.ResponseWriter
	gz  *gzip.Writer
	raw int64
}

func (g *gzipWriter) WriteHeader(code int) {
	g.Header().Del("Content-Length")
	g.ResponseWriter.WriteHeader(code)
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	g.Header().Del("Content-Length")
	n, err := g.gz.Write(data)
	g.raw += int64(n)
	return n, err
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

func (g *gzipWriter) Flush() {
	_ = g.gz.Flush()
	g.ResponseWriter.Flush()
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	requests        int64
	totalBytes      int64
	compressedBytes int64
}

func (cs *CompressionStats) record(raw, compressed int64) {
	if raw == 0 {
		return
	}
	atomic.AddInt64(&cs.requests, 1)
	atomic.AddInt64(&cs.totalBytes, raw)
	atomic.AddInt64(&cs.compressedBytes, compressed)
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := atomic.LoadInt64(&cs.totalBytes)
	compressed := atomic.LoadInt64(&cs.compressedBytes)

	ratio := float64(0)
	if total > 0 {
		ratio = float64(compressed) / float64(total)
	}

	return map[string]interface{}{
		"compressed_requests": atomic.LoadInt64(&cs.requests),
		"total_bytes":         total,
		"compressed_bytes":    compressed,
		"compression_ratio":   ratio,
	}
}
