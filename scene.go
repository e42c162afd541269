package gekkophys

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gekko3d/gekkophys/character"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScene = errors.New("gekkophys: invalid scene")

// SceneDef defines the initial state of a space.
type SceneDef struct {
	Boxes      []BoxDef       `yaml:"boxes"`
	Spheres    []SphereDef    `yaml:"spheres"`
	Cylinders  []CylinderDef  `yaml:"cylinders"`
	Meshes     []MeshDef      `yaml:"meshes"`
	Terrains   []TerrainDef   `yaml:"terrains"`
	Characters []CharacterDef `yaml:"characters"`
}

// BodyDef is shared by the convex definitions. A zero mass makes the body static. ID is
// optional and must parse as a UUID when set.
type BodyDef struct {
	ID           string     `yaml:"id"`
	Position     mgl32.Vec3 `yaml:"position"`
	Rotation     mgl32.Vec3 `yaml:"rotation"` // Euler angles in degrees, applied X then Y then Z
	Velocity     mgl32.Vec3 `yaml:"velocity"`
	Mass         float32    `yaml:"mass"`
	GravityScale *float32   `yaml:"gravity_scale"`
}

type BoxDef struct {
	BodyDef     `yaml:",inline"`
	HalfExtents mgl32.Vec3 `yaml:"half_extents"`
}

type SphereDef struct {
	BodyDef `yaml:",inline"`
	Radius  float32 `yaml:"radius"`
}

type CylinderDef struct {
	BodyDef    `yaml:",inline"`
	Radius     float32 `yaml:"radius"`
	HalfHeight float32 `yaml:"half_height"`
}

// MeshDef is a static triangle mesh given by vertices and counterclockwise index
// triples.
type MeshDef struct {
	Vertices []mgl32.Vec3 `yaml:"vertices"`
	Indices  []int        `yaml:"indices"`
	Position mgl32.Vec3   `yaml:"position"`
	Scale    mgl32.Vec3   `yaml:"scale"`
}

// TerrainDef loads a heightmap image. Each pixel is one sample; Scale maps a pixel step
// and a full luminance range to world units.
type TerrainDef struct {
	Heightmap string     `yaml:"heightmap"`
	Position  mgl32.Vec3 `yaml:"position"`
	Scale     mgl32.Vec3 `yaml:"scale"`
}

// CharacterDef places a character and scripts its inputs by tick.
type CharacterDef struct {
	Position mgl32.Vec3  `yaml:"position"`
	Move     mgl32.Vec2  `yaml:"move"`
	Stance   string      `yaml:"stance"`
	JumpAt   []uint64    `yaml:"jump_at"`
	Events   []StanceCue `yaml:"stance_changes"`
}

// StanceCue switches the desired stance at a tick.
type StanceCue struct {
	Tick   uint64 `yaml:"tick"`
	Stance string `yaml:"stance"`
}

// Scene is what LoadScene spawned.
type Scene struct {
	Collidables []collidables.Collidable
	Characters  []*ScriptedCharacter
}

// ScriptedCharacter replays the inputs of a CharacterDef.
type ScriptedCharacter struct {
	*character.Character
	def CharacterDef
}

// LoadSceneFile reads a YAML scene. Relative heightmap paths are resolved against the
// directory of the scene file.
func LoadSceneFile(path string) (*SceneDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene %s: %w", path, err)
	}
	def, err := DecodeScene(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range def.Terrains {
		if p := def.Terrains[i].Heightmap; p != "" && !filepath.IsAbs(p) {
			def.Terrains[i].Heightmap = filepath.Join(dir, p)
		}
	}
	return def, nil
}

func DecodeScene(r io.Reader) (*SceneDef, error) {
	var def SceneDef
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &def, nil
}

// LoadScene spawns every object of the scene into s. On error the objects spawned so
// far stay in the space.
func LoadScene(s *Space, scene *SceneDef) (*Scene, error) {
	out := &Scene{}
	spawn := func(c collidables.Collidable, err error) error {
		if err != nil {
			return err
		}
		if err := s.Add(c); err != nil {
			return err
		}
		out.Collidables = append(out.Collidables, c)
		return nil
	}

	for i, def := range scene.Boxes {
		if err := spawn(spawnConvex(s, def.BodyDef, &geom.Box{HalfExtents: def.HalfExtents}, def.HalfExtents.X() > 0 && def.HalfExtents.Y() > 0 && def.HalfExtents.Z() > 0)); err != nil {
			return out, fmt.Errorf("box %d: %w", i, err)
		}
	}
	for i, def := range scene.Spheres {
		if err := spawn(spawnConvex(s, def.BodyDef, &geom.Sphere{Radius: def.Radius}, def.Radius > 0)); err != nil {
			return out, fmt.Errorf("sphere %d: %w", i, err)
		}
	}
	for i, def := range scene.Cylinders {
		shape := &geom.Cylinder{Radius: def.Radius, HalfHeight: def.HalfHeight}
		if err := spawn(spawnConvex(s, def.BodyDef, shape, def.Radius > 0 && def.HalfHeight > 0)); err != nil {
			return out, fmt.Errorf("cylinder %d: %w", i, err)
		}
	}
	for i, def := range scene.Meshes {
		if err := spawn(spawnMesh(def)); err != nil {
			return out, fmt.Errorf("mesh %d: %w", i, err)
		}
	}
	for i, def := range scene.Terrains {
		if err := spawn(spawnTerrain(def)); err != nil {
			return out, fmt.Errorf("terrain %d: %w", i, err)
		}
	}
	for i, def := range scene.Characters {
		ch, err := spawnCharacter(s, def)
		if err != nil {
			return out, fmt.Errorf("character %d: %w", i, err)
		}
		out.Characters = append(out.Characters, ch)
	}
	return out, nil
}

func spawnConvex(s *Space, def BodyDef, shape geom.Shape, valid bool) (collidables.Collidable, error) {
	if !valid {
		return nil, fmt.Errorf("%w: non-positive %s dimensions", ErrInvalidScene, shape.Kind())
	}
	body := collidables.NewBody(def.Position, def.Mass)
	if def.ID != "" {
		id, err := uuid.Parse(def.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: id %q: %w", ErrInvalidScene, def.ID, err)
		}
		body.ID = id
	}
	r := def.Rotation
	body.Orientation = mgl32.AnglesToQuat(mgl32.DegToRad(r.X()), mgl32.DegToRad(r.Y()), mgl32.DegToRad(r.Z()), mgl32.XYZ)
	body.LinearVelocity = def.Velocity
	if def.GravityScale != nil {
		body.GravityScale = *def.GravityScale
	}
	return collidables.NewConvex(shape, body, s.config.NarrowPhase.CollisionMargin), nil
}

func placement(position, scale mgl32.Vec3) geom.AffineTransform {
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}
	return geom.NewAffineTransform(mgl32.Translate3D(position.X(), position.Y(), position.Z()).Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z())))
}

func spawnMesh(def MeshDef) (collidables.Collidable, error) {
	return collidables.NewStaticMesh(def.Vertices, def.Indices, placement(def.Position, def.Scale))
}

func spawnTerrain(def TerrainDef) (collidables.Collidable, error) {
	if def.Heightmap == "" {
		return nil, fmt.Errorf("%w: terrain without heightmap", ErrInvalidScene)
	}
	img, err := collidables.LoadHeightmap(def.Heightmap)
	if err != nil {
		return nil, err
	}
	return collidables.TerrainFromImage(img, placement(def.Position, def.Scale))
}

func spawnCharacter(s *Space, def CharacterDef) (*ScriptedCharacter, error) {
	if _, err := parseStance(def.Stance); err != nil {
		return nil, err
	}
	for _, e := range def.Events {
		if _, err := parseStance(e.Stance); err != nil {
			return nil, err
		}
	}
	ch, err := s.AddCharacter(def.Position)
	if err != nil {
		return nil, err
	}
	sc := &ScriptedCharacter{Character: ch, def: def}
	sc.Apply(0)
	return sc, nil
}

// Apply sets the inputs scripted for tick.
func (c *ScriptedCharacter) Apply(tick uint64) {
	if tick == 0 {
		c.SetMovementDirection(c.def.Move)
		if s, _ := parseStance(c.def.Stance); s != character.Standing {
			c.SetDesiredStance(s)
		}
	}
	for _, t := range c.def.JumpAt {
		if t == tick {
			c.Jump()
		}
	}
	for _, e := range c.def.Events {
		if e.Tick == tick {
			s, _ := parseStance(e.Stance)
			c.SetDesiredStance(s)
		}
	}
}

func parseStance(name string) (character.Stance, error) {
	switch name {
	case "", "standing":
		return character.Standing, nil
	case "crouching":
		return character.Crouching, nil
	case "prone":
		return character.Prone, nil
	}
	return character.Standing, fmt.Errorf("%w: unknown stance %q", ErrInvalidScene, name)
}
