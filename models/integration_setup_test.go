package models_test

// Requires Docker: INTEGRATION_TESTS=1 go test ./models -run Integration -v

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/models"
	"github.com/mmdatafocus/erp_backend/utils"
)

// integrationEnv is the database, Redis and chart of accounts shared by the
// integration tests of this package. Each test works in its own currency or
// date range so they do not see each other's rows.
type integrationEnv struct {
	admin   context.Context
	company *models.SegmentType
	account *models.SegmentType
}

var (
	envOnce    sync.Once
	sharedEnv  *integrationEnv
	envErr     error
	containers []string
)

func TestMain(m *testing.M) {
	code := m.Run()
	for _, name := range containers {
		_ = dockerRmForce(name)
	}
	os.Exit(code)
}

func integration(t *testing.T) *integrationEnv {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}
	envOnce.Do(func() { sharedEnv, envErr = setupIntegration() })
	if envErr != nil {
		t.Fatalf("integration setup: %v", envErr)
	}
	return sharedEnv
}

func setupIntegration() (*integrationEnv, error) {
	redisName, redisPort, err := startRedisContainer()
	if err != nil {
		return nil, err
	}
	containers = append(containers, redisName)
	mysqlName, mysqlPort, err := startMySQLContainer()
	if err != nil {
		return nil, err
	}
	containers = append(containers, mysqlName)

	for k, v := range map[string]string{
		"REDIS_ADDRESS": "127.0.0.1:" + redisPort,
		"DB_USER":       "root",
		"DB_PASSWORD":   "testpw",
		"DB_HOST":       "127.0.0.1",
		"DB_PORT":       mysqlPort,
		"DB_NAME":       "erp_test",
	} {
		os.Setenv(k, v)
	}
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := adminContext(0)
	admin, err := models.CreateUser(ctx, &models.NewUser{Username: "admin", Name: "Admin", Password: "admin-pass-1", IsAdmin: true})
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	env := &integrationEnv{admin: adminContext(admin.ID)}

	env.company, err = models.CreateSegmentType(env.admin, &models.NewSegmentType{SegmentName: "Company", IsRequired: true, DisplayOrder: 1})
	if err != nil {
		return nil, err
	}
	env.account, err = models.CreateSegmentType(env.admin, &models.NewSegmentType{SegmentName: "Account", IsRequired: true, DisplayOrder: 2})
	if err != nil {
		return nil, err
	}
	for _, s := range []models.NewSegment{
		{SegmentTypeId: env.company.ID, Code: "100", Alias: "Head Office"},
		{SegmentTypeId: env.company.ID, Code: "200", Alias: "Branch"},
		{SegmentTypeId: env.account.ID, Code: "1010", Alias: "Cash"},
		{SegmentTypeId: env.account.ID, Code: "1100", Alias: "Bank"},
		{SegmentTypeId: env.account.ID, Code: "4000", Alias: "Revenue"},
		{SegmentTypeId: env.account.ID, Code: "5000", Alias: "Expenses"},
	} {
		if _, err := models.CreateSegment(env.admin, &s); err != nil {
			return nil, fmt.Errorf("create segment %s: %w", s.Code, err)
		}
	}
	return env, nil
}

func adminContext(userId int) context.Context {
	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, userId)
	ctx = utils.SetUserNameInContext(ctx, "Admin")
	ctx = utils.SetUsernameInContext(ctx, "admin")
	return utils.SetIsAdminInContext(ctx, true)
}

func userContext(u *models.User) context.Context {
	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, u.ID)
	ctx = utils.SetUserNameInContext(ctx, u.Name)
	ctx = utils.SetUsernameInContext(ctx, u.Username)
	return utils.SetIsAdminInContext(ctx, false)
}

// pairs builds a company/account tuple from the shared chart.
func (e *integrationEnv) pairs(company, account string) []models.SegmentPair {
	return []models.SegmentPair{
		{SegmentTypeId: e.company.ID, Code: company},
		{SegmentTypeId: e.account.ID, Code: account},
	}
}

func (e *integrationEnv) openPeriod(t *testing.T, name string, start time.Time) {
	t.Helper()
	end := start.AddDate(0, 1, -1)
	period, err := models.CreatePeriod(e.admin, &models.NewPeriod{
		Name:         name,
		StartDate:    start,
		EndDate:      end,
		FiscalYear:   start.Year(),
		PeriodNumber: int(start.Month()),
	})
	if err != nil {
		t.Fatalf("create period %s: %v", name, err)
	}
	if _, err := models.OpenPeriod(e.admin, period.ID, models.PeriodModuleGL); err != nil {
		t.Fatalf("open period %s: %v", name, err)
	}
}

func startRedisContainer() (containerName, hostPort string, err error) {
	name := fmt.Sprintf("erp-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun("run", "-d", "--name", name, "-p", "127.0.0.1:0:6379", "redis:7-alpine")
	if err != nil {
		return "", "", fmt.Errorf("start redis container: %w\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		return name, "", fmt.Errorf("redis docker port: %w", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "redis-cli", "ping"); err == nil {
			return name, port, nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return name, "", fmt.Errorf("redis did not become ready")
}

func startMySQLContainer() (containerName, hostPort string, err error) {
	name := fmt.Sprintf("erp-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=erp_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
	)
	if err != nil {
		return "", "", fmt.Errorf("start mysql container: %w\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		return name, "", fmt.Errorf("mysql docker port: %w", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent"); err == nil {
			return name, port, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return name, "", fmt.Errorf("mysql did not become ready")
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	m := regexp.MustCompile(`:(\d+)`).FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	b, err := exec.Command("docker", args...).CombinedOutput()
	return string(b), err
}
