package builtin

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/viaduct-io/viaduct/filters"
)

const bufferSize = 8192

type encoding struct {
	name string
	q    float32
}

type compress struct {
	mime []string
}

var (
	supportedEncodings  = []string{"br", "gzip", "deflate"}
	unsupportedEncoding = errors.New("unsupported encoding")
)

var defaultCompressMIME = []string{
	"text/plain",
	"text/html",
	"application/json",
	"application/javascript",
	"application/x-javascript",
	"text/javascript",
	"text/css",
	"image/svg+xml",
	"application/octet-stream",
}

// NewCompress creates a filter specification whose instances compress
// the response body.
//
// The filter checks whether the response entity can be compressed at
// all. It leaves the response alone when the Content-Encoding is set to
// other than identity, when the Cache-Control applies the no-transform
// pragma, or when the Content-Type is not in the supported set. The
// default supported content types are: text/plain, text/html,
// application/json, application/javascript, application/x-javascript,
// text/javascript, text/css, image/svg+xml, application/octet-stream.
//
// The default set can be extended by passing "..." as the first argument
// followed by the additional types, or replaced by passing the types
// without it:
//
//	compress=...,image/tiff
//	compress=text/html
//
// The encoding is selected from the Accept-Encoding header of the
// request, honoring the quality values. Brotli, gzip and deflate are
// supported, a client accepting none of them receives the identity
// response. When compressing, the filter drops the Content-Length,
// triggering chunked transfer encoding, sets the Content-Encoding and
// adds Vary: Accept-Encoding if missing. The compression is streaming,
// using only a small internal buffer. Name: "compress".
func NewCompress() filters.Spec { return &compress{} }

func (c *compress) Name() string { return CompressName }

func (c *compress) CreateFilter(args map[string]string) (filters.Filter, error) {
	f := &compress{}

	a := filters.Args(args)
	mime := a.Strings("mimeTypes")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	if len(mime) == 0 {
		f.mime = defaultCompressMIME
		return f, nil
	}

	if mime[0] == "..." {
		f.mime = defaultCompressMIME
		mime = mime[1:]
	}

	f.mime = append(f.mime, mime...)
	return f, nil
}

func stringsContain(ss []string, s string, transform ...func(string) string) bool {
	for _, si := range ss {
		for _, t := range transform {
			si = t(si)
		}

		if si == s {
			return true
		}
	}

	return false
}

func canEncodeEntity(r *http.Response, mime []string) bool {
	if ce := r.Header.Get("Content-Encoding"); ce != "" && ce != "identity" /* forgiving for identity */ {
		return false
	}

	cc := strings.Split(r.Header.Get("Cache-Control"), ",")
	if stringsContain(cc, "no-transform", strings.TrimSpace, strings.ToLower) {
		return false
	}

	ct := r.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}

	return stringsContain(mime, ct)
}

func acceptedEncoding(r *http.Request) string {
	var encs []*encoding
	for _, s := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		sp := strings.Split(s, ";")
		if len(sp) == 0 {
			continue
		}

		name := strings.ToLower(strings.TrimSpace(sp[0]))
		if !stringsContain(supportedEncodings, name) {
			continue
		}

		enc := &encoding{name, 1}
		encs = append(encs, enc)

		for _, spi := range sp[1:] {
			spi = strings.TrimSpace(spi)
			if !strings.HasPrefix(spi, "q=") {
				continue
			}

			q, err := strconv.ParseFloat(strings.TrimPrefix(spi, "q="), 32)
			if err != nil {
				continue
			}

			enc.q = float32(q)
			break
		}
	}

	if len(encs) == 0 {
		return ""
	}

	// stable to keep the client's listing order among equal qualities
	sort.SliceStable(encs, func(i, j int) bool { return encs[i].q > encs[j].q })
	return encs[0].name
}

func setCompressionHeader(r *http.Response, enc string) {
	r.Header.Del("Content-Length")
	r.ContentLength = -1
	r.Header.Set("Content-Encoding", enc)

	if !stringsContain(r.Header["Vary"], "Accept-Encoding", http.CanonicalHeaderKey) {
		r.Header.Add("Vary", "Accept-Encoding")
	}
}

func encoder(enc string, w io.Writer) io.WriteCloser {
	switch enc {
	case "br":
		return brotli.NewWriter(w)
	case "gzip":
		return gzip.NewWriter(w)
	case "deflate":
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			// the flate doc states that the error is non nil only for
			// an invalid compression level
			panic(err)
		}

		return fw
	default:
		// the encoding was selected from the predefined set
		panic(unsupportedEncoding)
	}
}

func encode(out *io.PipeWriter, in io.ReadCloser, enc string) {
	e := encoder(enc, out)
	b := make([]byte, bufferSize)

	_, err := io.CopyBuffer(e, in, b)
	if err == nil {
		err = e.Close()
	} else {
		e.Close()
	}

	out.CloseWithError(err)
	in.Close()
}

func compressBody(r *http.Response, enc string) {
	in := r.Body
	pr, pw := io.Pipe()
	r.Body = pr
	go encode(pw, in, enc)
}

func (c *compress) Filter(ctx filters.FilterContext, next filters.Chain) error {
	if err := next.Filter(ctx); err != nil {
		return err
	}

	rsp := ctx.Response()
	if rsp == nil || rsp.Body == nil || !canEncodeEntity(rsp, c.mime) {
		return nil
	}

	enc := acceptedEncoding(ctx.Request())
	if enc == "" {
		return nil
	}

	setCompressionHeader(rsp, enc)
	compressBody(rsp, enc)
	return nil
}
