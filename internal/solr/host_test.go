package solr

import "testing"

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"solr1":                       "http://solr1:8983",
		"ip-10-20-2-57.internal:8983": "http://ip-10-20-2-57.internal:8983",
		"10.0.0.1:7574":               "http://10.0.0.1:7574",
		"http://solr1:8983/solr/":     "http://solr1:8983",
		"https://search.example.com":  "https://search.example.com",
		" solr1:9000/ ":               "http://solr1:9000",
	}
	for in, want := range cases {
		got, err := NormalizeHost(in)
		if err != nil {
			t.Fatalf("NormalizeHost(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeHostRejects(t *testing.T) {
	for _, in := range []string{"", "ftp://solr1", "http://"} {
		if _, err := NormalizeHost(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
