// Package collector merges the build definitions found in files, directories
// and readers into one YAML document.
package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/avast/retry-go"
	"github.com/itchyny/gojq"
	"github.com/kairos-io/diskbuild/constants"
	"gopkg.in/yaml.v3"
)

// maxFileSize is the size above which a definition file is skipped.
const maxFileSize = 1024 * 1024

type Configs []*Config

type ConfigValues map[string]interface{}

// Config is a merged build definition. Plain YAML arrays are not accepted, as
// there is no way to merge them with a map.
type Config struct {
	Sources []string
	Values  ConfigValues
}

// MergeConfigURL looks for the "config_url" key and, when set, fetches the
// remote definition and merges it over the current one. Remote definitions
// can chain further config_url values.
func (c *Config) MergeConfigURL() error {
	configURL := c.ConfigURL()
	if configURL == "" {
		return nil
	}

	remoteConfig, err := fetchRemoteConfig(configURL)
	if err != nil {
		return err
	}

	if err := remoteConfig.MergeConfigURL(); err != nil {
		return err
	}

	return c.MergeConfig(remoteConfig)
}

func (c *Config) valuesCopy() (ConfigValues, error) {
	var result ConfigValues
	data, err := yaml.Marshal(c.Values)
	if err != nil {
		return result, err
	}

	err = yaml.Unmarshal(data, &result)

	return result, err
}

// MergeConfig merges the config passed as parameter back to the receiver Config.
func (c *Config) MergeConfig(newConfig *Config) error {
	aMap, err := c.valuesCopy()
	if err != nil {
		return err
	}
	bMap, err := newConfig.valuesCopy()
	if err != nil {
		return err
	}

	mergedValues, err := DeepMerge(aMap, bMap)
	if err != nil {
		return err
	}
	finalConfig := Config{}
	finalConfig.Sources = append(c.Sources, newConfig.Sources...)
	if mergedValues != nil {
		finalConfig.Values = mergedValues.(ConfigValues)
	}

	*c = finalConfig

	return nil
}

func mergeSlices(sliceA, sliceB []interface{}) ([]interface{}, error) {
	if len(sliceA) == 0 {
		return sliceB, nil
	}
	// Slices of maps are concatenated
	if reflect.ValueOf(sliceA[0]).Kind() == reflect.Map {
		return append(sliceA, sliceB...), nil
	}

	// Anything else is a set union
	for _, vB := range sliceB {
		found := false
		for _, vA := range sliceA {
			if vA == vB {
				found = true
				break
			}
		}
		if !found {
			sliceA = append(sliceA, vB)
		}
	}

	return sliceA, nil
}

func deepMergeMaps(a, b ConfigValues) (ConfigValues, error) {
	if a == nil {
		a = ConfigValues{}
	}
	for k, v := range b {
		current, ok := a[k]
		if !ok {
			a[k] = v
			continue
		}
		res, err := DeepMerge(current, v)
		if err != nil {
			return a, fmt.Errorf("merging %s: %w", k, err)
		}
		a[k] = res
	}

	return a, nil
}

// DeepMerge takes two data structures and merges them together deeply. B
// always wins over A for scalar values.
func DeepMerge(a, b interface{}) (interface{}, error) {
	if a == nil && b != nil {
		return b, nil
	}
	if a == nil {
		return nil, nil
	}

	typeA := reflect.TypeOf(a)
	typeB := reflect.TypeOf(b)

	// a null b resets a to its zero value
	if b == nil {
		switch typeA.Kind() {
		case reflect.Slice:
			return reflect.MakeSlice(typeA, 0, 0).Interface(), nil
		case reflect.Map:
			return reflect.MakeMap(typeA).Interface(), nil
		}
		return reflect.Zero(typeA).Interface(), nil
	}

	if typeA.Kind() != typeB.Kind() {
		return ConfigValues{}, fmt.Errorf("cannot merge %s with %s", typeA.String(), typeB.String())
	}

	switch typeA.Kind() {
	case reflect.Slice:
		return mergeSlices(a.([]interface{}), b.([]interface{}))
	case reflect.Map:
		return deepMergeMaps(toValues(a), toValues(b))
	}

	return b, nil
}

// toValues accepts both ConfigValues and the plain maps yaml.v3 decodes nested mappings to.
func toValues(v interface{}) ConfigValues {
	switch m := v.(type) {
	case ConfigValues:
		return m
	case map[string]interface{}:
		return ConfigValues(m)
	}
	return ConfigValues{}
}

// String returns the YAML representation of the Config with its header.
func (c *Config) String() (string, error) {
	sourcesComment := ""
	if len(c.Sources) > 0 {
		sourcesComment = "# Sources:\n"
		for _, s := range c.Sources {
			sourcesComment += fmt.Sprintf("# - %s\n", s)
		}
		sourcesComment += "\n"
	}

	data, err := yaml.Marshal(c.Values)
	if err != nil {
		return "", fmt.Errorf("marshalling the config to a string: %s", err)
	}

	return fmt.Sprintf("%s\n\n%s%s", constants.ConfigHeader, sourcesComment, string(data)), nil
}

// Unmarshal decodes the merged values into out, a typed build definition.
func (c *Config) Unmarshal(out interface{}) error {
	data, err := yaml.Marshal(c.Values)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

func (cs Configs) Merge() (*Config, error) {
	result := &Config{}

	for _, c := range cs {
		if err := c.MergeConfigURL(); err != nil {
			return result, err
		}

		if err := result.MergeConfig(c); err != nil {
			return result, err
		}
	}

	return result, nil
}

// Scan collects every definition the options point at and merges them in
// order: files first, then readers, then the overwrites.
func Scan(o *Options) (*Config, error) {
	configs := Configs{}

	configs = append(configs, parseFiles(o, o.ScanDir)...)
	configs = append(configs, parseReaders(o, o.Readers)...)

	mergedConfig, err := configs.Merge()
	if err != nil {
		return mergedConfig, err
	}

	if o.Overwrites != "" {
		if err := yaml.Unmarshal([]byte(o.Overwrites), &mergedConfig.Values); err != nil {
			return mergedConfig, fmt.Errorf("parsing overwrites: %w", err)
		}
	}

	return mergedConfig, nil
}

func allFiles(dir []string) []string {
	files := []string{}
	for _, d := range dir {
		if f, err := listFiles(d); err == nil {
			files = append(files, f...)
		}
	}
	return files
}

// parseFiles returns a list of Configs parsed from files.
func parseFiles(o *Options, dir []string) Configs {
	result := Configs{}
	for _, f := range allFiles(dir) {
		if ext := filepath.Ext(f); ext != ".yml" && ext != ".yaml" {
			o.warn(f, "skipping, not a yaml file")
			continue
		}
		if fileSize(f) > maxFileSize {
			o.warn(f, "skipping, too big (>1MB)")
			continue
		}
		b, err := os.ReadFile(f)
		if err != nil {
			o.warn(f, err.Error())
			continue
		}
		if !HasValidHeader(string(b)) {
			o.warn(f, "skipping, no valid header")
			continue
		}

		var newConfig Config
		if err := yaml.Unmarshal(b, &newConfig.Values); err != nil {
			o.warn(f, fmt.Sprintf("failed to parse config: %s", err))
			continue
		}
		newConfig.Sources = []string{f}

		result = append(result, &newConfig)
	}

	return result
}

// parseReaders returns a list of Configs parsed from Reader interfaces.
// Readers are passed explicitly so no header check is done. JSON is accepted too.
func parseReaders(o *Options, readers []io.Reader) Configs {
	result := Configs{}
	for _, r := range readers {
		var newConfig Config
		read, err := io.ReadAll(r)
		if err != nil {
			o.warn("reader", err.Error())
			continue
		}
		if err = yaml.Unmarshal(read, &newConfig.Values); err != nil {
			if err = json.Unmarshal(read, &newConfig.Values); err != nil {
				o.warn("reader", fmt.Sprintf("failed to parse config: %s", err))
				continue
			}
		}
		newConfig.Sources = []string{"reader"}
		result = append(result, &newConfig)
	}

	return result
}

func fileSize(f string) int64 {
	stat, err := os.Stat(f)
	if err != nil {
		return 0
	}
	return stat.Size()
}

func listFiles(dir string) ([]string, error) {
	content := []string{}

	err := filepath.Walk(dir,
		func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if !info.IsDir() {
				content = append(content, path)
			}

			return nil
		})

	return content, err
}

// ConfigURL returns the value of config_url if set or empty string otherwise.
func (c Config) ConfigURL() string {
	if val, hasKey := c.Values["config_url"]; hasKey {
		if s, isString := val.(string); isString {
			return s
		}
	}

	return ""
}

func fetchRemoteConfig(url string) (*Config, error) {
	var body []byte
	result := &Config{}

	err := retry.Do(
		func() error {
			resp, err := http.Get(url)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status: %d", resp.StatusCode)
			}

			body, err = io.ReadAll(resp.Body)
			return err
		}, retry.Delay(time.Second), retry.Attempts(3),
	)
	if err != nil {
		return result, fmt.Errorf("fetching %s: %w", url, err)
	}

	if !HasValidHeader(string(body)) {
		return result, fmt.Errorf("remote config %s has no %s header", url, constants.ConfigHeader)
	}

	if err := yaml.Unmarshal(body, &result.Values); err != nil {
		return result, fmt.Errorf("could not unmarshal remote config to an object: %w", err)
	}

	result.Sources = []string{url}

	return result, nil
}

// HasValidHeader looks for the header in the first lines of data, comments
// may come before it.
func HasValidHeader(data string) bool {
	headers := strings.SplitN(data, "\n", 10)
	for _, line := range headers {
		header := strings.TrimRightFunc(line, unicode.IsSpace)
		if header == constants.ConfigHeader {
			return true
		}
	}
	return false
}

// Query runs a jq expression, without its leading dot, over the merged values
// and returns the matches as YAML.
func (c Config) Query(s string) (res string, err error) {
	s = fmt.Sprintf(".%s", s)

	var dat map[string]interface{}
	b, err := json.Marshal(c.Values)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(b, &dat); err != nil {
		return res, err
	}
	// drop null results so an unset key prints nothing
	query, err := gojq.Parse(s + " | if ( . | type) == \"null\" then empty else . end")
	if err != nil {
		return res, err
	}
	iter := query.Run(dat)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return res, fmt.Errorf("failed parsing, error: %w", err)
		}

		out, err := yaml.Marshal(v)
		if err != nil {
			return res, err
		}
		res += string(out)
	}
	return
}
