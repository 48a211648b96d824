package memory

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/store"
	"posadmin/backend/internal/xid"
)

type Store struct {
	mu           sync.RWMutex
	profiles     map[string]domain.Profile
	profileOrder []string
	products     map[string]domain.Product
	productOrder []string
	sales        []domain.Sale
	usersByEmail map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		profiles:     make(map[string]domain.Profile),
		products:     make(map[string]domain.Product),
		usersByEmail: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials are
// read from SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD environment variables;
// hardcoded dev defaults are used with a warning when unset. Production runs
// use PostgreSQL (DATABASE_URL) and never touch these.
func seedUsers(adminSubject, userSubject string) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	userPwd := envOr("SEED_USER_PASSWORD", "user123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_USER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_USER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		subject  string
		email    string
		password string
	}{
		{adminSubject, "admin@posadmin.local", adminPwd},
		{userSubject, "user@posadmin.local", userPwd},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			SubjectID: u.subject,
			Email:     u.email,
			Password:  string(hash),
			CreatedAt: now,
		}
	}
	return users
}

// NewSeeded returns a store pre-populated with a small catalog, a sales
// ledger, and two accounts. The regular user's profile is stored under a
// legacy document id that differs from its subject id, which exercises the
// query-fallback resolution path end to end.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	adminSubject := "sub-admin-001"
	userSubject := "sub-user-001"

	for _, p := range []domain.Profile{
		{DocID: adminSubject, SubjectID: adminSubject, Email: "admin@posadmin.local", Name: "Store Admin", Role: domain.RoleAdmin, CreatedAt: now.Add(-90 * 24 * time.Hour)},
		{DocID: "legacy-doc-7f3a", SubjectID: userSubject, Email: "user@posadmin.local", Name: "Floor Staff", Role: domain.RoleUser, CreatedAt: now.Add(-60 * 24 * time.Hour)},
	} {
		s.profiles[p.DocID] = p
		s.profileOrder = append(s.profileOrder, p.DocID)
	}

	for _, p := range []domain.Product{
		{ID: "prod-0001", SKU: "SKU-KEYB-01", Name: "Wireless Keyboard", Category: "Electronics", CostPriceCents: 180000, SellingPriceCents: 259000, Stock: 24, NotifyQuantity: 5},
		{ID: "prod-0002", SKU: "SKU-MOUS-01", Name: "Optical Mouse", Category: "Electronics", CostPriceCents: 65000, SellingPriceCents: 99000, Stock: 3, NotifyQuantity: 3},
		{ID: "prod-0003", SKU: "SKU-CABL-01", Name: "USB-C Cable 1m", Category: "Accessories", CostPriceCents: 22000, SellingPriceCents: 45000, Stock: 0, NotifyQuantity: 10},
		{ID: "prod-0004", SKU: "SKU-NOTE-01", Name: "Spiral Notebook A5", Category: "Stationery", CostPriceCents: 9000, SellingPriceCents: 18000, Stock: 140, NotifyQuantity: 20},
		{ID: "prod-0005", SKU: "SKU-PENS-01", Name: "Gel Pen 3-Pack", Category: "Stationery", CostPriceCents: 12000, SellingPriceCents: 21000, Stock: 58, NotifyQuantity: 12},
	} {
		p.CreatedAt = now.Add(-30 * 24 * time.Hour)
		s.products[p.ID] = p
		s.productOrder = append(s.productOrder, p.ID)
	}

	day := func(offset int) string {
		return now.AddDate(0, 0, -offset).Format("2006-01-02")
	}
	for i, sale := range []domain.Sale{
		{Date: day(9), TotalAmountCents: 259000, ProfitCents: 79000, ItemsCount: 1},
		{Date: day(6), TotalAmountCents: 198000, ProfitCents: 68000, ItemsCount: 2},
		{Date: day(3), TotalAmountCents: 63000, ProfitCents: 27000, ItemsCount: 3},
		{Date: day(1), TotalAmountCents: 144000, ProfitCents: 51000, ItemsCount: 4},
		{Date: day(0), TotalAmountCents: 45000, ProfitCents: 23000, ItemsCount: 1},
		{Date: day(0), TotalAmountCents: 99000, ProfitCents: 34000, ItemsCount: 1},
	} {
		sale.ID = xid.New("sale")
		sale.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		s.sales = append(s.sales, sale)
	}

	s.usersByEmail = seedUsers(adminSubject, userSubject)
	return s
}

func (s *Store) GetProfileByKey(_ context.Context, subjectID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[subjectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := profile
	return &copied, nil
}

func (s *Store) QueryProfilesBySubject(_ context.Context, subjectID string) ([]domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Profile, 0, 1)
	for _, docID := range s.profileOrder {
		if profile := s.profiles[docID]; profile.SubjectID == subjectID {
			matches = append(matches, profile)
		}
	}
	return matches, nil
}

func (s *Store) CreateProfile(_ context.Context, profile domain.Profile) (*domain.Profile, error) {
	if profile.SubjectID == "" || profile.Role == "" {
		return nil, store.ErrInvalidInput
	}
	if profile.DocID == "" {
		profile.DocID = profile.SubjectID
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.DocID]; exists {
		return nil, store.ErrDuplicate
	}
	s.profiles[profile.DocID] = profile
	s.profileOrder = append(s.profileOrder, profile.DocID)

	created := profile
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.SKU == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	s.products[product.ID] = product
	s.productOrder = append(s.productOrder, product.ID)

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.SKU == "" || product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	for i, existing := range s.productOrder {
		if existing == id {
			s.productOrder = append(s.productOrder[:i], s.productOrder[i+1:]...)
			break
		}
	}
	return nil
}

// ListSales preserves arrival order; the aggregation engine relies on it to
// break same-day ties in the activity feed.
func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, len(s.sales))
	copy(sales, s.sales)
	return sales, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.Date == "" || sale.TotalAmountCents < 0 || sale.ItemsCount < 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sales = append(s.sales, sale)
	created := sale
	return &created, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" || user.Password == "" || user.SubjectID == "" {
		return store.ErrInvalidInput
	}
	user.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[email]; exists {
		return store.ErrDuplicate
	}
	s.usersByEmail[email] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func envOr(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
