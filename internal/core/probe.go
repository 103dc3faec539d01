package core

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/PortalExtract/internal/automation"
	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/antchfx/htmlquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
)

// DefaultProbeTimeout 探测请求超时
const DefaultProbeTimeout = 30 * time.Second

// FieldProbe 单个字段在静态页面中的匹配情况
type FieldProbe struct {
	Field   string
	Found   bool
	Locator string // 首个命中的定位器
}

// ProbeResult 门户探测结果
type ProbeResult struct {
	URL             string
	StatusCode      int
	ContentEncoding string
	Size            int
	Duration        time.Duration
	Fields          []FieldProbe
}

// Found 命中的字段数
func (r *ProbeResult) Found() int {
	n := 0
	for _, f := range r.Fields {
		if f.Found {
			n++
		}
	}
	return n
}

// Prober 不启动浏览器的门户探测器
// 检查门户是否可达,以及哪些选择器在服务端返回的HTML中已经存在
type Prober struct {
	headers models.HeaderProvider
	timeout time.Duration
}

// NewProber 创建探测器
func NewProber(headers models.HeaderProvider, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{headers: headers, timeout: timeout}
}

// Probe 请求目标地址并在返回的HTML中匹配注册表中的所有字段
// 由脚本渲染的元素不会出现在结果中,未命中不代表选择器错误
func (p *Prober) Probe(targetURL string, registry *config.Registry) (*ProbeResult, error) {
	if err := models.ValidateURL(targetURL); err != nil {
		return nil, err
	}

	var headers http.Header
	if p.headers != nil {
		h, err := p.headers.GetHeaders()
		if err != nil {
			return nil, err
		}
		headers = h
	}

	c := colly.NewCollector()
	c.SetRequestTimeout(p.timeout)
	c.WithTransport(&http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // 内网门户常见自签名证书
		},
	})

	result := &ProbeResult{URL: targetURL}
	var (
		body     []byte
		visitErr error
	)

	c.OnRequest(func(r *colly.Request) {
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
		utils.Debugf("探测请求: %s", r.URL)
	})

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentEncoding = r.Headers.Get("Content-Encoding")
		decoded, err := decompressResponse(result.ContentEncoding, r.Body)
		if err != nil {
			utils.Warnf("解压响应失败 [%s] (编码=%s): %v", targetURL, result.ContentEncoding, err)
			decoded = r.Body
		}
		body = decoded
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		visitErr = err
	})

	start := time.Now()
	if err := c.Visit(targetURL); err != nil && visitErr == nil {
		visitErr = err
	}
	result.Duration = time.Since(start)

	if visitErr != nil {
		return result, fmt.Errorf("门户不可达 [%s]: %w", targetURL, visitErr)
	}
	result.Size = len(body)

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return result, fmt.Errorf("解析门户页面失败: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	for _, field := range registry.Fields() {
		chain, _ := registry.Resolve(field)
		fp := FieldProbe{Field: field}
		for _, loc := range chain {
			if matchStatic(doc, root, loc) {
				fp.Found = true
				fp.Locator = loc.String()
				break
			}
		}
		result.Fields = append(result.Fields, fp)
	}

	utils.Infof("🔍 探测完成: %s (HTTP %d, %d 字节, 命中 %d/%d 个字段)",
		targetURL, result.StatusCode, result.Size, result.Found(), len(result.Fields))
	return result, nil
}

// matchStatic 在静态HTML中检查定位器
func matchStatic(doc *goquery.Document, root *html.Node, loc models.Locator) bool {
	q, err := automation.Translate(loc)
	if err != nil {
		return false
	}
	if q.XPath {
		nodes, err := htmlquery.QueryAll(root, q.Expr)
		return err == nil && len(nodes) > 0
	}
	return doc.Find(q.Expr).Length() > 0
}

// decompressResponse 根据Content-Encoding解压响应体
// gzip 可能已被HTTP客户端解压,此时原样返回
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		return io.ReadAll(reader)

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
