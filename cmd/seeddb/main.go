// Command seeddb fills the configured database with a demo office map
// and manager roster for local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"ticketflow/pkg/config"
	"ticketflow/pkg/db"
	"ticketflow/pkg/model"
	"ticketflow/pkg/store"
)

var (
	configPath = flag.String("config", "configs/ticketflow.yaml", "Path to the config file")
	wipe       = flag.Bool("wipe", false, "Delete all existing rows before seeding")
)

func main() {
	flag.Parse()

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	if *wipe {
		if err := st.Wipe(ctx); err != nil {
			return fmt.Errorf("failed to wipe: %w", err)
		}
		fmt.Println("wiped existing data")
	}

	offices := demoOffices()
	if err := st.UpsertOffices(ctx, offices); err != nil {
		return fmt.Errorf("failed to seed offices: %w", err)
	}
	fmt.Printf("seeded %d offices\n", len(offices))

	managers := demoManagers()
	if err := st.UpsertManagers(ctx, managers); err != nil {
		return fmt.Errorf("failed to seed managers: %w", err)
	}
	fmt.Printf("seeded %d managers\n", len(managers))

	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.DB.URL != "" {
		st, err := store.NewPostgres(ctx, cfg.DB.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return st, nil
	}

	conn, err := db.Init(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store.NewSQLite(conn), nil
}

func ptr(f float64) *float64 { return &f }

func demoOffices() []model.Office {
	return []model.Office{
		{Name: "Астана", Address: "пр. Мәңгілік Ел 55", Latitude: ptr(51.1694), Longitude: ptr(71.4491)},
		{Name: "Алматы", Address: "пр. Абая 44", Latitude: ptr(43.2380), Longitude: ptr(76.9452)},
		{Name: "Караганда", Address: "пр. Бухар-Жырау 49", Latitude: ptr(49.8047), Longitude: ptr(73.1094)},
		{Name: "Шымкент", Address: "пр. Тауке хана 31", Latitude: ptr(42.3417), Longitude: ptr(69.5901)},
	}
}

// demoManagers covers the routing matrix: every office has a VIP-skilled
// manager and a Kazakh speaker, the hubs also have chief specialists for
// personal-data changes and at least one English speaker.
func demoManagers() []model.Manager {
	type spec struct {
		id, name string
		position model.Position
		office   string
		skills   []string
		workload int
	}
	specs := []spec{
		{"ast-01", "Серикова Айгуль", model.ChiefSpecialist, "Астана", []string{model.SkillVIP, model.SkillKZ}, 2},
		{"ast-02", "Иванов Иван", model.SeniorSpecialist, "Астана", []string{model.SkillVIP, model.SkillENG}, 1},
		{"ast-03", "Оспанов Даулет", model.Specialist, "Астана", []string{model.SkillKZ}, 0},
		{"ast-04", "Ким Валерия", model.Specialist, "Астана", nil, 0},
		{"alm-01", "Нурланова Дана", model.ChiefSpecialist, "Алматы", []string{model.SkillVIP, model.SkillKZ, model.SkillENG}, 3},
		{"alm-02", "Петров Пётр", model.SeniorSpecialist, "Алматы", []string{model.SkillVIP}, 1},
		{"alm-03", "Абенов Арман", model.Specialist, "Алматы", []string{model.SkillKZ}, 0},
		{"alm-04", "Соколова Мария", model.Specialist, "Алматы", []string{model.SkillENG}, 2},
		{"kar-01", "Жумабаев Ержан", model.SeniorSpecialist, "Караганда", []string{model.SkillVIP, model.SkillKZ}, 1},
		{"kar-02", "Лебедева Ольга", model.Specialist, "Караганда", nil, 0},
		{"shy-01", "Ахметова Салтанат", model.ChiefSpecialist, "Шымкент", []string{model.SkillVIP, model.SkillKZ}, 0},
		{"shy-02", "Ерматов Бекзат", model.Specialist, "Шымкент", []string{model.SkillKZ}, 1},
	}

	managers := make([]model.Manager, len(specs))
	for i, s := range specs {
		managers[i] = model.Manager{
			ID:       s.id,
			FullName: s.name,
			Position: s.position,
			Office:   s.office,
			Skills:   s.skills,
			Workload: s.workload,
			Active:   true,
		}
	}
	return managers
}
