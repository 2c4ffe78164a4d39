package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Directory - внешний справочник объектов, клиентов и менеджеров
type Directory interface {
	PropertyExists(ctx context.Context, id string) (bool, error)
	CustomerExists(ctx context.Context, id string) (bool, error)
	SalespersonExists(ctx context.Context, id string) (bool, error)
	ContactEmail(ctx context.Context, personID string) (string, error)
}

// MemoryDirectory - справочник в памяти
type MemoryDirectory struct {
	mu           sync.RWMutex
	properties   map[string]bool
	customers    map[string]bool
	salespersons map[string]bool
	emails       map[string]string
}

// NewMemoryDirectory создает пустой справочник
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		properties:   make(map[string]bool),
		customers:    make(map[string]bool),
		salespersons: make(map[string]bool),
		emails:       make(map[string]string),
	}
}

func (d *MemoryDirectory) AddProperty(id string) *MemoryDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties[id] = true
	return d
}

func (d *MemoryDirectory) AddCustomer(id, email string) *MemoryDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customers[id] = true
	d.emails[id] = email
	return d
}

func (d *MemoryDirectory) AddSalesperson(id, email string) *MemoryDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.salespersons[id] = true
	d.emails[id] = email
	return d
}

func (d *MemoryDirectory) PropertyExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.properties[id], nil
}

func (d *MemoryDirectory) CustomerExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.customers[id], nil
}

func (d *MemoryDirectory) SalespersonExists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.salespersons[id], nil
}

func (d *MemoryDirectory) ContactEmail(_ context.Context, personID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.emails[personID], nil
}

// HTTPDirectory обращается к справочнику по HTTP: 200 - найден, 404 - нет
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory создает клиента справочника
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) PropertyExists(ctx context.Context, id string) (bool, error) {
	return d.exists(ctx, "properties", id)
}

func (d *HTTPDirectory) CustomerExists(ctx context.Context, id string) (bool, error) {
	return d.exists(ctx, "customers", id)
}

func (d *HTTPDirectory) SalespersonExists(ctx context.Context, id string) (bool, error) {
	return d.exists(ctx, "salespersons", id)
}

// ContactEmail возвращает адрес из /people/{id}
func (d *HTTPDirectory) ContactEmail(ctx context.Context, personID string) (string, error) {
	resp, err := d.get(ctx, "people", personID)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("справочник вернул статус %d", resp.StatusCode)
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("неверный ответ справочника: %v", err)
	}
	return body.Email, nil
}

func (d *HTTPDirectory) exists(ctx context.Context, collection, id string) (bool, error) {
	resp, err := d.get(ctx, collection, id)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("справочник вернул статус %d для %s/%s", resp.StatusCode, collection, id)
}

func (d *HTTPDirectory) get(ctx context.Context, collection, id string) (*http.Response, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", d.baseURL, collection, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return d.client.Do(req)
}
