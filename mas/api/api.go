// Item index query API
package main

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nci/gomemcache/memcache"
	"github.com/nci/stacube/mas"
	"github.com/nci/stacube/stac"
	"github.com/nci/stacube/utils"
	"github.com/rs/zerolog"
)

var (
	ix       *mas.Indexer
	mc       *memcache.Client
	log      zerolog.Logger
	dsn      = flag.String("dsn", "", "postgres connection string, defaults to STACUBE_MAS_DSN")
	dbPool   = flag.Int("pool", 8, "database pool size")
	httpPort = flag.Int("port", 8080, "http port")
	mcURI    = flag.String("memcache", "", "memcache uri host:port")
)

// Spit out a simple JSON-formatted error message for Content-Type: application/json
func httpJSONError(response http.ResponseWriter, err error, status int) {
	http.Error(response, fmt.Sprintf(`{ "error": %q }`, err.Error()), status)
}

// parseFilter reads collection, bbox=minx,miny,maxx,maxy, time, until and
// limit from the query string.
func parseFilter(request *http.Request) (mas.Filter, error) {
	f := mas.Filter{Collection: request.FormValue("collection")}

	if s := request.FormValue("bbox"); s != "" {
		parts := strings.Split(s, ",")
		if len(parts) != 4 {
			return f, fmt.Errorf("bbox needs 4 comma separated values")
		}
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return f, fmt.Errorf("bbox: %v", err)
			}
			f.BBox = append(f.BBox, v)
		}
	}

	for key, dst := range map[string]**time.Time{"time": &f.Since, "until": &f.Until} {
		if s := request.FormValue(key); s != "" {
			t, err := stac.ParseTime(s)
			if err != nil {
				return f, fmt.Errorf("%s: %v", key, err)
			}
			*dst = &t
		}
	}

	if s := request.FormValue("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

func handler(response http.ResponseWriter, request *http.Request) {
	response.Header().Set("Content-Type", "application/json")

	var hash string
	if mc != nil {
		buff := md5.Sum([]byte(request.URL.RequestURI()))
		hash = hex.EncodeToString(buff[:])

		if cached, err := mc.Get(hash); err == nil {
			response.Write(cached.Value)
			return
		}
	}

	if _, ok := request.URL.Query()["intersects"]; !ok {
		httpJSONError(response, errors.New("unknown operation; currently supported: ?intersects"), 400)
		return
	}

	f, err := parseFilter(request)
	if err != nil {
		httpJSONError(response, err, 400)
		return
	}

	records, err := ix.Query(request.Context(), f)
	if err != nil {
		log.Error().Err(err).Str("uri", request.URL.RequestURI()).Msg("query failed")
		httpJSONError(response, err, 500)
		return
	}
	if records == nil {
		records = []mas.Record{}
	}

	payload, err := json.Marshal(map[string]interface{}{"items": records})
	if err != nil {
		httpJSONError(response, err, 500)
		return
	}
	response.Write(payload)

	if mc != nil {
		// don't care about errors; memcache may not necessarily retain this anyway
		mc.Set(&memcache.Item{Key: hash, Value: payload})
	}
}

func main() {
	flag.Parse()

	utils.LoadEnvFiles()
	settings := utils.SettingsFrom(utils.NewViper())
	log = utils.NewLogger(settings.LogConfig())

	if *dsn == "" {
		*dsn = settings.MasDSN
	}
	if *mcURI == "" {
		*mcURI = settings.Memcache
	}
	if *dsn == "" {
		log.Fatal().Msg("no database: set -dsn or STACUBE_MAS_DSN")
	}

	var err error
	ix, err = mas.Open(*dsn, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database open failed")
	}
	defer ix.Close()
	ix.SetPool(*dbPool)

	if *mcURI != "" {
		// lazy connection; errors returned in .Get
		mc = memcache.New(*mcURI)
	}

	log.Info().Int("port", *httpPort).Int("pool", *dbPool).Msg("serving item index")
	http.HandleFunc("/", handler)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", *httpPort), nil); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
