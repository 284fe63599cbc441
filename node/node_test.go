package node

import "testing"

func TestURLAndDatabaseURL(t *testing.T) {
	n := New(SchemeHTTPS, "db1.example.com", 8080, "orders", "store-1")

	wantURL := "https://db1.example.com:8080"
	if got := n.URL(); got != wantURL {
		t.Errorf("URL() = %q, want %q", got, wantURL)
	}

	wantDBURL := wantURL + "/databases/orders"
	if got := n.DatabaseURL(); got != wantDBURL {
		t.Errorf("DatabaseURL() = %q, want %q", got, wantDBURL)
	}
}

func TestKeyIncludesDatabase(t *testing.T) {
	a := New(SchemeHTTP, "localhost", 8080, "orders", "store-1")
	b := New(SchemeHTTP, "localhost", 8080, "inventory", "store-1")

	if a.Key() == b.Key() {
		t.Errorf("expected different keys for different databases on the same node, both were %q", a.Key())
	}
}

func TestHealthDefaultsHealthy(t *testing.T) {
	n := New(SchemeHTTP, "localhost", 8080, "orders", "store-1")
	if n.Health() != HealthHealthy {
		t.Errorf("Health() = %v, want %v", n.Health(), HealthHealthy)
	}

	n.SetHealth(HealthUnhealthy)
	if n.Health() != HealthUnhealthy {
		t.Errorf("Health() = %v, want %v after SetHealth", n.Health(), HealthUnhealthy)
	}
}

func TestUpdateClusterTag(t *testing.T) {
	n := New(SchemeHTTP, "localhost", 8080, "orders", "store-1")
	n.UpdateClusterTag("tag-42")
	if n.ClusterTag != "tag-42" {
		t.Errorf("ClusterTag = %q, want %q", n.ClusterTag, "tag-42")
	}
}
